// Package export renders a board snapshot for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"taskboard/internal/config"
	"taskboard/internal/domain"
)

type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
	PDF  Format = "pdf"
)

var Formats = []Format{JSON, CSV, PDF}

func ParseFormat(s string) (Format, error) {
	in := Format(strings.ToLower(strings.TrimSpace(s)))
	if in == "" {
		return JSON, nil
	}
	for _, f := range Formats {
		if f == in {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q (want one of %v)", s, Formats)
}

func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv"
	case PDF:
		return "application/pdf"
	}
	return "application/json"
}

// Document is the JSON export shape.
type Document struct {
	PageID   string        `json:"page_id,omitempty"`
	New      []domain.Task `json:"new"`
	Current  []domain.Task `json:"in_progress"`
	Archived []domain.Task `json:"archived"`
}

// Exporter renders snapshots using configured container headings.
type Exporter struct {
	Labels config.Labels
}

func (e Exporter) Write(w io.Writer, f Format, pageID string, snap domain.Snapshot) error {
	switch f {
	case JSON:
		return writeJSON(w, pageID, snap)
	case CSV:
		return writeCSV(w, snap)
	case PDF:
		return e.writePDF(w, pageID, snap)
	}
	return fmt.Errorf("unknown export format %q", f)
}

func writeJSON(w io.Writer, pageID string, snap domain.Snapshot) error {
	doc := Document{
		PageID:   pageID,
		New:      nonNil(snap.Container(domain.RegionNewList)),
		Current:  nonNil(snap.Container(domain.RegionCurrentList)),
		Archived: nonNil(snap.Container(domain.RegionArchivedList)),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// writeCSV emits tasks in insertion order.
func writeCSV(w io.Writer, snap domain.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "description", "stage", "created_at"}); err != nil {
		return err
	}
	for _, t := range snap.Tasks {
		if err := cw.Write([]string{t.ID, t.Description, string(t.Stage), t.CreatedAt.UTC().Format(time.RFC3339)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e Exporter) writePDF(w io.Writer, pageID string, snap domain.Snapshot) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; task text arrives as UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Task board", false)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(40, 10, "Task board")
	pdf.Ln(8)
	if pageID != "" {
		pdf.SetFont("Arial", "", 8)
		pdf.Cell(40, 6, "page "+pageID)
		pdf.Ln(8)
	}
	for _, stage := range domain.Stages {
		tasks := snap.Container(domain.StageContainer(stage))
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 8, tr(fmt.Sprintf("%s (%d)", e.Labels.For(stage), len(tasks))))
		pdf.Ln(9)
		pdf.SetFont("Arial", "", 10)
		if len(tasks) == 0 {
			pdf.MultiCell(0, 6, "-", "0", "L", false)
		}
		for _, t := range tasks {
			pdf.MultiCell(0, 6, tr("- "+t.Description), "0", "L", false)
		}
		pdf.Ln(4)
	}
	return pdf.Output(w)
}

func nonNil(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	return tasks
}
