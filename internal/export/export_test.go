package export

import (
	"bytes"
	"compress/zlib"
	"encoding/csv"
	"encoding/json"
	"io"
	"testing"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/domain"
)

func sampleSnapshot(t *testing.T) domain.Snapshot {
	t.Helper()
	n := 0
	b := board.New(
		board.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
		board.WithIDGenerator(func() string { n++; return "task-" + string(rune('0'+n)) }),
	)
	b.AddTask("Buy milk")
	b.AddTask("Walk dog, then \"rest\"")
	b.AddTask("File taxes")
	b.ClickTask("task-2")
	b.ClickTask("task-3")
	b.ClickTask("task-3")
	return b.Snapshot()
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": JSON, "json": JSON, "CSV": CSV, " pdf ": PDF}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (Exporter{Labels: config.Default().Labels}).Write(&buf, JSON, "p1", sampleSnapshot(t)); err != nil {
		t.Fatal(err)
	}
	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.PageID != "p1" || len(doc.New) != 1 || len(doc.Current) != 1 || len(doc.Archived) != 1 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if doc.Archived[0].Description != "File taxes" {
		t.Fatalf("unexpected archived task %+v", doc.Archived[0])
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := (Exporter{}).Write(&buf, CSV, "", sampleSnapshot(t)); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 || rows[0][0] != "id" || rows[0][3] != "created_at" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[2][1] != "Walk dog, then \"rest\"" || rows[2][2] != "in_progress" {
		t.Fatalf("quoted description not preserved: %v", rows[2])
	}
	if rows[1][3] != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected timestamp %q", rows[1][3])
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := (Exporter{Labels: config.Default().Labels}).Write(&buf, PDF, "p1", sampleSnapshot(t)); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected pdf header, got %q", buf.Bytes()[:min(16, buf.Len())])
	}
}

// pdfStreams returns every content stream of a PDF, inflated when possible.
func pdfStreams(t *testing.T, data []byte) [][]byte {
	t.Helper()
	var out [][]byte
	parts := bytes.Split(data, []byte("stream\n"))
	for _, part := range parts[1:] {
		end := bytes.Index(part, []byte("\nendstream"))
		if end < 0 {
			continue
		}
		raw := part[:end]
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			if inflated, err := io.ReadAll(zr); err == nil {
				raw = inflated
			}
		}
		out = append(out, raw)
	}
	return out
}

func TestWritePDFEncodesAccents(t *testing.T) {
	b := board.New()
	b.AddTask("Café")
	var buf bytes.Buffer
	if err := (Exporter{Labels: config.Default().Labels}).Write(&buf, PDF, "", b.Snapshot()); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, stream := range pdfStreams(t, buf.Bytes()) {
		if bytes.Contains(stream, []byte("Caf\xc3\xa9")) {
			t.Fatalf("description written as raw utf-8")
		}
		if bytes.Contains(stream, []byte("Caf\xe9")) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cp1252 encoded description in page content")
	}
}
