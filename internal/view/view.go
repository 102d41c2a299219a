// Package view renders the board widget as a server-side HTML page whose
// element ids are the region names.
package view

import (
	"embed"
	"html/template"
	"io"
	"net/url"

	"taskboard/internal/config"
	"taskboard/internal/domain"
)

//go:embed templates/page.html
var templatesFS embed.FS

type Column struct {
	Region domain.Region
	Label  string
	Tasks  []domain.Task
}

// Model is the data behind one rendered page.
type Model struct {
	Title    string
	PageID   string
	FormOpen bool
	Entry    string
	Columns  []Column
}

// Action is the form target for a trigger region.
func (m Model) Action(region string) string {
	return PagePath(m.PageID) + "/regions/" + url.PathEscape(region)
}

// ItemAction is the form target for a task element inside a container.
func (m Model) ItemAction(region domain.Region, taskID string) string {
	return m.Action(string(region)) + "/items/" + url.PathEscape(taskID)
}

func (m Model) ClosePath() string {
	return PagePath(m.PageID) + "/close"
}

func PagePath(pageID string) string {
	return "/pages/" + url.PathEscape(pageID)
}

type Renderer struct {
	tmpl   *template.Template
	labels config.Labels
}

func New(labels config.Labels) (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/page.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl, labels: labels}, nil
}

// Build turns a snapshot into a page model with one column per stage.
func (r *Renderer) Build(pageID string, snap domain.Snapshot) Model {
	m := Model{
		Title:    "Tasks",
		PageID:   pageID,
		FormOpen: snap.FormOpen,
		Entry:    snap.Entry,
	}
	for _, stage := range domain.Stages {
		region := domain.StageContainer(stage)
		m.Columns = append(m.Columns, Column{
			Region: region,
			Label:  r.labels.For(stage),
			Tasks:  snap.Container(region),
		})
	}
	return m
}

func (r *Renderer) Render(w io.Writer, pageID string, snap domain.Snapshot) error {
	return r.tmpl.ExecuteTemplate(w, "page.html", r.Build(pageID, snap))
}
