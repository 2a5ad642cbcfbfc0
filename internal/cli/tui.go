package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/diagramcraft/pkg/project"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// ProjectListModel - Interactive project selection
// =============================================================================

// ProjectListModel is the bubbletea model for interactive project selection.
// The studio embeds it; it never quits the program itself but reports the
// outcome through Selected and Cancelled.
type ProjectListModel struct {
	Projects  []*project.Project
	ActiveID  string
	Cursor    int
	Selected  *project.Project
	Cancelled bool
	Height    int
	Offset    int
}

// NewProjectListModel creates a picker with the cursor on the active project.
func NewProjectListModel(projects []*project.Project, activeID string) ProjectListModel {
	m := ProjectListModel{
		Projects: projects,
		ActiveID: activeID,
		Height:   15,
	}
	for i, p := range projects {
		if p.ID == activeID {
			m.Cursor = i
		}
	}
	m.clampOffset()
	return m
}

// Done reports whether the user picked a project or backed out.
func (m ProjectListModel) Done() bool {
	return m.Selected != nil || m.Cancelled
}

func (m ProjectListModel) Init() tea.Cmd {
	return nil
}

func (m ProjectListModel) Update(msg tea.Msg) (ProjectListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+p":
			m.Cancelled = true
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(m.Projects)-1 {
				m.Cursor++
			}
		case "home", "g":
			m.Cursor = 0
		case "end", "G":
			m.Cursor = max(len(m.Projects)-1, 0)
		case "enter":
			if len(m.Projects) > 0 {
				m.Selected = m.Projects[m.Cursor]
			}
		}
		m.clampOffset()
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-10, 5)
		m.clampOffset()
	}
	return m, nil
}

func (m *ProjectListModel) clampOffset() {
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
}

func (m ProjectListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Open Project"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ open  esc back"))
	b.WriteString("\n\n")

	if len(m.Projects) == 0 {
		b.WriteString(listNormalStyle.Render("  No projects yet. Press ctrl+n in the editor to create one."))
		b.WriteString("\n")
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Projects))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		p := m.Projects[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		active := ""
		if p.ID == m.ActiveID {
			active = "●"
		}
		rows = append(rows, []string{
			cursor,
			p.Name,
			active,
			strconv.Itoa(p.LatestVersion()),
			formatRelativeTime(p.UpdatedAt),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Project", "Active", "Versions", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			actualIdx := m.Offset + row
			if actualIdx >= len(m.Projects) {
				return lipgloss.NewStyle()
			}

			base := lipgloss.NewStyle()
			if col == 3 || col == 4 {
				base = base.Foreground(colorDim)
			}
			if actualIdx == m.Cursor {
				if col == 3 || col == 4 {
					return base.Foreground(colorGray).Bold(true)
				}
				return listSelectedStyle
			}
			if col == 2 {
				return base.Foreground(colorGreen)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Projects))))

	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}
