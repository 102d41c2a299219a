package ui

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/domain"
)

func press(m *Model, keys ...tea.KeyMsg) {
	for _, k := range keys {
		m.Update(k)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m *Model, s string) {
	for _, r := range s {
		press(m, runes(string(r)))
	}
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
)

func TestAddAndWalkThroughStages(t *testing.T) {
	b := board.New()
	m := NewModel(b, config.Default().Labels)

	press(m, runes("a"))
	if !b.FormOpen() {
		t.Fatalf("a should open the form")
	}
	typeText(m, "Buy milk")
	press(m, enter)
	if b.FormOpen() || b.Len() != 1 {
		t.Fatalf("enter should add and close: open=%v len=%d", b.FormOpen(), b.Len())
	}
	if !strings.Contains(m.View(), "Buy milk") {
		t.Fatalf("view should list the task:\n%s", m.View())
	}

	press(m, space)
	snap := b.Snapshot()
	if len(snap.Container(domain.RegionCurrentList)) != 1 {
		t.Fatalf("space should advance the selected task")
	}
	press(m, tab, space)
	if len(b.Snapshot().Container(domain.RegionArchivedList)) != 1 {
		t.Fatalf("task should be archived")
	}
	press(m, tab, enter)
	if b.Len() != 0 {
		t.Fatalf("clicking an archived task should delete it")
	}
	if err := b.Consistent(); err != nil {
		t.Fatal(err)
	}
}

func TestEscapeCancelsAndEmptyEnterCloses(t *testing.T) {
	b := board.New()
	m := NewModel(b, config.Default().Labels)
	press(m, runes("a"))
	typeText(m, "draft")
	press(m, esc)
	if b.FormOpen() || b.Len() != 0 || b.Entry() != "draft" {
		t.Fatalf("esc should close without adding: open=%v len=%d entry=%q", b.FormOpen(), b.Len(), b.Entry())
	}
	press(m, runes("a"))
	if m.input.Value() != "draft" {
		t.Fatalf("reopening should restore the entry, got %q", m.input.Value())
	}
	m.input.SetValue("   ")
	press(m, enter)
	if b.FormOpen() || b.Len() != 0 {
		t.Fatalf("empty save should close the form and add nothing")
	}
}

func TestQuitAndSelectionBounds(t *testing.T) {
	m := NewModel(board.New(), config.Default().Labels)
	press(m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyUp}, space)
	if m.cursor != 0 {
		t.Fatalf("cursor should stay in bounds, got %d", m.cursor)
	}
	if _, cmd := m.Update(runes("q")); cmd == nil {
		t.Fatalf("q should quit")
	}
	if IsTTY(&bytes.Buffer{}) {
		t.Fatalf("buffer is not a tty")
	}
}
