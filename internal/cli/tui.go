package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	previewLines = 40
	listWidth    = 36
)

var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	previewStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
)

// inspectModel is the bubbletea model of the pack browser: a file list on
// the left and a preview of the selected file on the right.
type inspectModel struct {
	Pack    *packView
	Cursor  int
	Offset  int
	Height  int
	Preview string
}

func newInspectModel(v *packView) inspectModel {
	m := inspectModel{Pack: v, Height: 20}
	m.Preview = m.load()
	return m
}

func (m inspectModel) Init() tea.Cmd {
	return nil
}

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		last := len(m.Pack.Entries) - 1
		prev := m.Cursor
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < last {
				m.Cursor++
			}
		case "home", "g":
			m.Cursor = 0
		case "end", "G":
			m.Cursor = max(last, 0)
		}
		m.scroll()
		if m.Cursor != prev {
			m.Preview = m.load()
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
		m.scroll()
	}
	return m, nil
}

// scroll keeps the cursor inside the visible window.
func (m *inspectModel) scroll() {
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
}

// load reads the head of the selected file.
func (m inspectModel) load() string {
	if len(m.Pack.Entries) == 0 {
		return listDimStyle.Render("empty pack")
	}
	rel := m.Pack.Entries[m.Cursor].Path
	data, err := os.ReadFile(filepath.Join(m.Pack.Dir, filepath.FromSlash(rel)))
	if err != nil {
		return StyleError.Render(fmt.Sprintf("cannot read %s", rel))
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > previewLines {
		lines = append(lines[:previewLines], listDimStyle.Render("…"))
	}
	return strings.Join(lines, "\n")
}

func (m inspectModel) View() string {
	var b strings.Builder
	s := m.Pack.Summary

	b.WriteString(StyleTitle.Render(fmt.Sprintf("%s @ %s", s.Repository.Name, shortCommit(s.Repository.CommitSHA))))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  g/G top/bottom  q quit"))
	b.WriteString("\n\n")

	var list strings.Builder
	end := min(m.Offset+m.Height, len(m.Pack.Entries))
	for i := m.Offset; i < end; i++ {
		e := m.Pack.Entries[i]
		if i == m.Cursor {
			list.WriteString(listSelectedStyle.Render("▸ " + e.Path))
		} else {
			list.WriteString(listNormalStyle.Render("  " + e.Path))
		}
		list.WriteString("\n")
	}
	list.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Pack.Entries))))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(listWidth).Render(list.String()),
		previewStyle.Render(m.Preview),
	))
	return b.String()
}

func shortCommit(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
