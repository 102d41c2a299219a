// Package ui provides the terminal rendition of the board.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/domain"
)

var (
	columnStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(28)
	activeColumn  = columnStyle.BorderForeground(lipgloss.Color("69"))
	headingStyle  = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	formStyle     = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

// Run shows b until the user quits. The board lives as long as the program.
func Run(ctx context.Context, b *board.Board, labels config.Labels) error {
	if !IsTTY(os.Stdout) {
		return fmt.Errorf("tui requires a TTY")
	}
	program := tea.NewProgram(NewModel(b, labels), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

// Model drives a board from key presses. Keys are delivered one at a time by
// the bubbletea event loop, so the board needs no locking here.
type Model struct {
	board  *board.Board
	labels config.Labels
	input  textinput.Model
	column int
	cursor int
	status string
}

func NewModel(b *board.Board, labels config.Labels) *Model {
	ti := textinput.New()
	ti.Placeholder = "Describe the task"
	ti.CharLimit = 256
	ti.Width = 40
	return &Model{board: b, labels: labels, input: ti}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if key.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.board.FormOpen() {
		return m.updateForm(key)
	}
	switch key.String() {
	case "q":
		return m, tea.Quit
	case "a":
		m.apply(m.board.Click(domain.RegionAddTrigger, ""))
		m.input.SetValue(m.board.Entry())
		return m, m.input.Focus()
	case "tab", "right", "l":
		m.column = (m.column + 1) % len(domain.Stages)
		m.cursor = 0
	case "shift+tab", "left", "h":
		m.column = (m.column + len(domain.Stages) - 1) % len(domain.Stages)
		m.cursor = 0
	case "down", "j":
		m.cursor++
	case "up", "k":
		m.cursor--
	case " ", "space", "enter":
		if t, ok := m.selected(); ok {
			m.apply(m.board.Click(m.region(), t.ID))
		}
	}
	m.clamp()
	return m, nil
}

func (m *Model) updateForm(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.board.SetEntry(m.input.Value())
		m.apply(m.board.Click(domain.RegionCancel, ""))
		m.input.Blur()
		return m, nil
	case "enter":
		m.board.SetEntry(m.input.Value())
		change := m.apply(m.board.Click(domain.RegionSave, ""))
		if change.Type == domain.ChangeTaskAdded {
			m.input.Reset()
			m.column = 0
			m.cursor = len(m.tasks()) - 1
		}
		if !m.board.FormOpen() {
			m.input.Blur()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m *Model) apply(c domain.Change) domain.Change {
	switch c.Type {
	case domain.ChangeTaskAdded:
		m.status = fmt.Sprintf("added %q", c.Description)
	case domain.ChangeTaskAdvanced:
		m.status = fmt.Sprintf("moved %q to %s", c.Description, m.labels.For(c.To))
	case domain.ChangeTaskDeleted:
		m.status = fmt.Sprintf("deleted %q", c.Description)
	case domain.ChangeInputIgnored:
		m.status = "nothing to add"
	default:
		m.status = ""
	}
	return c
}

func (m *Model) region() domain.Region {
	return domain.StageContainer(domain.Stages[m.column])
}

func (m *Model) tasks() []domain.Task {
	return m.board.Snapshot().Container(m.region())
}

func (m *Model) selected() (domain.Task, bool) {
	tasks := m.tasks()
	if m.cursor < 0 || m.cursor >= len(tasks) {
		return domain.Task{}, false
	}
	return tasks[m.cursor], true
}

func (m *Model) clamp() {
	n := len(m.tasks())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) View() string {
	snap := m.board.Snapshot()
	cols := make([]string, 0, len(domain.Stages))
	for i, stage := range domain.Stages {
		tasks := snap.Container(domain.StageContainer(stage))
		var b strings.Builder
		b.WriteString(headingStyle.Render(fmt.Sprintf("%s (%d)", m.labels.For(stage), len(tasks))))
		b.WriteString("\n")
		if len(tasks) == 0 {
			b.WriteString(mutedStyle.Render("empty"))
		}
		for j, t := range tasks {
			line := "  " + t.Description
			if i == m.column && j == m.cursor && !snap.FormOpen {
				line = selectedStyle.Render("> " + t.Description)
			}
			b.WriteString(line + "\n")
		}
		style := columnStyle
		if i == m.column {
			style = activeColumn
		}
		cols = append(cols, style.Render(strings.TrimRight(b.String(), "\n")))
	}
	out := lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	if snap.FormOpen {
		out += "\n" + formStyle.Render("New task: "+m.input.View())
	}
	if m.status != "" {
		out += "\n" + m.status
	}
	help := "a add  tab/arrows select  space click  q quit"
	if snap.FormOpen {
		help = "enter save  esc cancel"
	}
	return out + "\n" + mutedStyle.Render(help) + "\n"
}

// IsTTY returns true if w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
