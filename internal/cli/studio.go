package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/diagramcraft/pkg/controller"
	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/export"
	"github.com/matzehuels/diagramcraft/pkg/project"
	"github.com/matzehuels/diagramcraft/pkg/session"
	"github.com/matzehuels/diagramcraft/pkg/templates"
)

// studioCommand opens the interactive terminal studio.
func (c *CLI) studioCommand() *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "studio",
		Short: "Edit and preview diagrams interactively",
		Long: `Open the terminal studio on the active project.

The editor renders automatically after you stop typing. The side panel
shows the render state, diagram insights and the structure outline.

Keys:
  ctrl+r        render now
  ctrl+s        save (commit) the working copy
  ctrl+p        open another project
  ctrl+n        create a project
  ctrl+e        export SVG        ctrl+g  export PNG
  ctrl+up/down  zoom in/out       ctrl+home  reset zoom
  esc, ctrl+c   quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStudio(cmd.Context(), noCache)
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	return cmd
}

func (c *CLI) runStudio(ctx context.Context, noCache bool) error {
	a, err := c.openApp(ctx, noCache)
	if err != nil {
		return err
	}
	defer a.Close()

	// Log lines would tear the alt screen; keep only errors while it is up.
	prev := c.Logger.GetLevel()
	if prev < LogWarn {
		c.SetLogLevel(LogWarn)
	}
	defer c.SetLogLevel(prev)

	p := tea.NewProgram(newStudioModel(ctx, a), tea.WithAltScreen(), tea.WithContext(ctx))
	a.ctrl.Session().OnChange(func(s session.Snapshot) { p.Send(snapshotMsg(s)) })

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(studioModel); ok && m.app.ctrl.Dirty() {
		printWarning("Unsaved changes to %s were discarded", m.projectName())
	}
	return nil
}

// =============================================================================
// Messages
// =============================================================================

type (
	snapshotMsg session.Snapshot
	tickMsg     struct{}

	// openedMsg reports a project that became active in the controller.
	openedMsg struct {
		project *project.Project
		err     error
	}

	projectsMsg struct {
		projects []*project.Project
		err      error
	}

	// flashMsg is a one-line result shown in the footer.
	flashMsg struct {
		text string
		err  error
	}
)

const studioTick = 250 * time.Millisecond

func tick() tea.Cmd {
	return tea.Tick(studioTick, func(time.Time) tea.Msg { return tickMsg{} })
}

// =============================================================================
// Model
// =============================================================================

type studioMode int

const (
	modeEdit studioMode = iota
	modePick
	modeName
)

type studioModel struct {
	ctx context.Context
	app *app

	editor textarea.Model
	name   textinput.Model
	picker ProjectListModel
	mode   studioMode

	project *project.Project
	status  controller.Status

	flash     string
	flashErr  bool
	quitArmed bool

	width, height int
}

func newStudioModel(ctx context.Context, a *app) studioModel {
	ed := textarea.New()
	ed.Placeholder = "flowchart TD\n  A --> B"
	ed.CharLimit = 0
	ed.ShowLineNumbers = true
	ed.SetWidth(72)
	ed.SetHeight(20)
	ed.Focus()

	name := textinput.New()
	name.Placeholder = "Project name"
	name.CharLimit = 120

	return studioModel{
		ctx:    ctx,
		app:    a,
		editor: ed,
		name:   name,
		status: a.ctrl.Status(),
	}
}

func (m studioModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.openActive(), tick())
}

// openActive loads the stored active project, or a scratch diagram when
// there is none.
func (m studioModel) openActive() tea.Cmd {
	ctrl := m.app.ctrl
	ctx := m.ctx
	return func() tea.Msg {
		ticket, err := ctrl.Open(ctx)
		if err != nil {
			return openedMsg{err: err}
		}
		if ticket == nil {
			return openedMsg{}
		}
		p, err := ctrl.Active(ctx)
		return openedMsg{project: p, err: err}
	}
}

func (m studioModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.picker, _ = m.picker.Update(msg)
		return m, nil

	case tickMsg:
		m.status = m.app.ctrl.Status()
		return m, tick()

	case snapshotMsg:
		m.status = m.app.ctrl.Status()
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.setFlash("", msg.err)
			return m, nil
		}
		m.project = msg.project
		m.status = m.app.ctrl.Status()
		if m.project != nil {
			// The working copy, which keeps unsaved edits when the active
			// project is picked again.
			m.editor.SetValue(m.app.ctrl.Session().Source())
			m.setFlash("Opened "+m.project.Name, nil)
			return m, nil
		}

		// Scratch diagram: nothing to save until a project is created.
		m.editor.SetValue(templates.DefaultSource())
		m.app.ctrl.Session().EditSource(m.editor.Value())
		m.setFlash("No active project: editing a scratch diagram (ctrl+n to save it as a project)", nil)
		ctrl, ctx := m.app.ctrl, m.ctx
		return m, func() tea.Msg {
			if _, err := ctrl.Render(ctx); err != nil {
				return flashMsg{err: err}
			}
			return nil
		}

	case projectsMsg:
		if msg.err != nil {
			m.setFlash("", msg.err)
			return m, nil
		}
		m.picker = NewProjectListModel(msg.projects, m.app.ctrl.ActiveID())
		m.picker, _ = m.picker.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
		m.mode = modePick
		m.editor.Blur()
		return m, nil

	case flashMsg:
		m.setFlash(msg.text, msg.err)
		m.status = m.app.ctrl.Status()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modePick:
			return m.updatePicker(msg)
		case modeName:
			return m.updateName(msg)
		}
		return m.updateEditor(msg)
	}

	if m.mode == modeEdit {
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m studioModel) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.app.ctrl
	ctx := m.ctx

	key := msg.String()
	if key != "esc" {
		m.quitArmed = false
	}

	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if ctrl.Dirty() && !m.quitArmed {
			m.quitArmed = true
			m.setFlash("Unsaved changes: ctrl+s to save, esc again to quit", nil)
			return m, nil
		}
		return m, tea.Quit

	case "ctrl+r":
		return m, func() tea.Msg {
			if _, err := ctrl.Render(ctx); err != nil {
				return flashMsg{err: err}
			}
			return flashMsg{text: "Rendering…"}
		}

	case "ctrl+s":
		return m, func() tea.Msg {
			p, err := ctrl.Commit(ctx)
			if err != nil {
				return flashMsg{err: err}
			}
			return flashMsg{text: fmt.Sprintf("Saved %s (version %d)", p.Name, p.LatestVersion())}
		}

	case "ctrl+p":
		store := m.app.store
		return m, func() tea.Msg {
			ps, err := store.List(ctx)
			return projectsMsg{projects: ps, err: err}
		}

	case "ctrl+n":
		m.mode = modeName
		m.editor.Blur()
		m.name.SetValue("")
		return m, m.name.Focus()

	case "ctrl+e":
		return m, m.exportCmd(export.FormatSVG)
	case "ctrl+g":
		return m, m.exportCmd(export.FormatPNG)

	case "ctrl+up":
		m.setFlash(fmt.Sprintf("Zoom %s", zoomLabel(ctrl.ZoomIn())), nil)
		return m, nil
	case "ctrl+down":
		m.setFlash(fmt.Sprintf("Zoom %s", zoomLabel(ctrl.ZoomOut())), nil)
		return m, nil
	case "ctrl+home":
		m.setFlash(fmt.Sprintf("Zoom %s", zoomLabel(ctrl.ResetZoom())), nil)
		return m, nil
	}

	before := m.editor.Value()
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if after := m.editor.Value(); after != before {
		ctrl.Edit(after)
	}
	return m, cmd
}

func (m studioModel) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	m.picker, _ = m.picker.Update(msg)
	if !m.picker.Done() {
		return m, nil
	}

	m.mode = modeEdit
	focus := m.editor.Focus()
	if m.picker.Cancelled {
		return m, focus
	}

	ctrl := m.app.ctrl
	ctx := m.ctx
	id := m.picker.Selected.ID
	return m, tea.Batch(focus, func() tea.Msg {
		if _, err := ctrl.Select(ctx, id); err != nil {
			return openedMsg{err: err}
		}
		p, err := ctrl.Active(ctx)
		return openedMsg{project: p, err: err}
	})
}

func (m studioModel) updateName(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeEdit
		m.name.Blur()
		return m, m.editor.Focus()
	case "enter":
		name := m.name.Value()
		m.mode = modeEdit
		m.name.Blur()

		ctrl := m.app.ctrl
		ctx := m.ctx
		// The new project starts from whatever is in the editor.
		source := m.editor.Value()
		return m, tea.Batch(m.editor.Focus(), func() tea.Msg {
			p, err := ctrl.CreateWithSource(ctx, name, source)
			if err != nil {
				return openedMsg{err: err}
			}
			if _, err := ctrl.Select(ctx, p.ID); err != nil {
				return openedMsg{err: err}
			}
			return openedMsg{project: p}
		})
	}

	var cmd tea.Cmd
	m.name, cmd = m.name.Update(msg)
	return m, cmd
}

func (m studioModel) exportCmd(format string) tea.Cmd {
	exp := m.app.export
	ctx := m.ctx
	stem := slugify(m.projectName())
	return func() tea.Msg {
		d, err := exp.Export(ctx, format)
		if err != nil {
			return flashMsg{err: err}
		}
		path := stem + "." + format
		if err := writeFile(path, d.Data); err != nil {
			return flashMsg{err: err}
		}
		return flashMsg{text: fmt.Sprintf("Exported %s (%d bytes)", path, len(d.Data))}
	}
}

func (m *studioModel) setFlash(text string, err error) {
	m.flashErr = err != nil
	if err != nil {
		text = derrors.UserMessage(err)
	}
	m.flash = text
}

func (m *studioModel) resize() {
	if m.width == 0 {
		return
	}
	edWidth := max(m.width*3/5, 30)
	m.editor.SetWidth(edWidth)
	m.editor.SetHeight(max(m.height-6, 5))
	m.name.Width = max(m.width/2, 20)
}

func (m studioModel) projectName() string {
	if m.project == nil {
		return "scratch"
	}
	return m.project.Name
}

// =============================================================================
// View
// =============================================================================

var (
	studioPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorDim).
				Padding(0, 1)
	studioErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
)

func (m studioModel) View() string {
	switch m.mode {
	case modePick:
		return m.picker.View()
	case modeName:
		return StyleTitle.Render("New Project") + "\n\n" +
			m.name.View() + "\n\n" +
			listDimStyle.Render("⏎ create  esc cancel")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		studioPanelStyle.Render(m.editor.View()),
		studioPanelStyle.Width(m.sideWidth()).Render(m.sidePanel()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), body, m.footer())
}

func (m studioModel) sideWidth() int {
	if m.width == 0 {
		return 36
	}
	return max(m.width-m.editor.Width()-8, 20)
}

func (m studioModel) header() string {
	title := StyleTitle.Render(appName) + StyleDim.Render("  ·  ") + StyleValue.Render(m.projectName())
	if m.status.Dirty {
		title += StyleWarning.Render("  [modified]")
	}
	return title + StyleDim.Render(fmt.Sprintf("  ·  zoom %s", zoomLabel(m.status.Zoom)))
}

func (m studioModel) sidePanel() string {
	snap := m.status.Session
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Preview"))
	b.WriteString("\n")
	b.WriteString(stateLabel(snap.State))
	if snap.State == session.Rendered && snap.Duration > 0 {
		b.WriteString(StyleDim.Render(fmt.Sprintf("  %s", snap.Duration.Round(time.Millisecond))))
		if snap.Cached {
			b.WriteString(styleCached.Render("  " + iconCached))
		}
	}
	b.WriteString("\n")

	if snap.Message != "" {
		b.WriteString("\n")
		b.WriteString(studioErrorStyle.Width(m.sideWidth() - 2).Render(snap.Message))
		b.WriteString("\n")
	}

	if !snap.HasArtifact() {
		b.WriteString("\n")
		b.WriteString(StyleDim.Render("Nothing rendered yet"))
		return b.String()
	}

	st := snap.Stats
	b.WriteString("\n")
	b.WriteString(StyleTitle.Render("Insights"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", StyleDim.Render("type      "), StyleValue.Render(st.Type))
	fmt.Fprintf(&b, "%s %s\n", StyleDim.Render("complexity"), StyleValue.Render(st.Complexity))
	fmt.Fprintf(&b, "%s %s\n", StyleDim.Render("nodes     "), StyleNumber.Render(fmt.Sprint(st.NodeCount)))
	fmt.Fprintf(&b, "%s %s\n", StyleDim.Render("edges     "), StyleNumber.Render(fmt.Sprint(st.EdgeCount)))

	nodes := snap.Summary.Nodes
	if len(nodes) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	b.WriteString(StyleTitle.Render("Outline"))
	b.WriteString("\n")
	limit := max(m.height-18, 5)
	for i, n := range nodes {
		if i == limit {
			b.WriteString(StyleDim.Render(fmt.Sprintf("… %d more", len(nodes)-limit)))
			break
		}
		label := n.Label
		if label == "" {
			label = n.ID
		}
		b.WriteString(StyleDim.Render(iconInfo+" ") + listNormalStyle.Render(label) + "\n")
	}
	return b.String()
}

func (m studioModel) footer() string {
	help := StyleDim.Render("ctrl+r render · ctrl+s save · ctrl+p open · ctrl+n new · ctrl+e svg · ctrl+g png · ctrl+↑/↓ zoom · esc quit")
	if m.flash == "" {
		return help
	}
	if m.flashErr {
		return help + "\n" + styleIconError.Render(iconError) + " " + studioErrorStyle.Render(m.flash)
	}
	return help + "\n" + styleIconInfo.Render(iconInfo) + " " + m.flash
}

func stateLabel(s session.State) string {
	switch s {
	case session.Rendering:
		return styleIconSpinner.Render("● rendering")
	case session.Rendered:
		return StyleSuccess.Render(iconSuccess + " rendered")
	case session.Failed:
		return studioErrorStyle.Render(iconError + " failed")
	}
	return StyleDim.Render("○ idle")
}

func zoomLabel(z float64) string {
	return fmt.Sprintf("%.0f%%", z*100)
}
