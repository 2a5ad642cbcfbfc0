package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/project"
	"github.com/matzehuels/diagramcraft/pkg/templates"
)

// projectCommand creates the project management command.
func (c *CLI) projectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects", "p"},
		Short:   "Manage saved diagram projects",
		Long: `Manage saved diagram projects.

Projects are addressed by id, unique id prefix or exact name.`,
	}

	cmd.AddCommand(c.projectCreateCommand())
	cmd.AddCommand(c.projectListCommand())
	cmd.AddCommand(c.projectShowCommand())
	cmd.AddCommand(c.projectRenameCommand())
	cmd.AddCommand(c.projectDeleteCommand())
	cmd.AddCommand(c.projectSelectCommand())
	cmd.AddCommand(c.projectHistoryCommand())
	cmd.AddCommand(c.projectRestoreCommand())
	cmd.AddCommand(c.projectCommitCommand())
	cmd.AddCommand(c.projectRenderCommand())

	return cmd
}

// withStore opens the configured project store for the duration of fn.
func (c *CLI) withStore(ctx context.Context, fn func(*project.Store) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	store, err := c.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (c *CLI) projectCreateCommand() *cobra.Command {
	var tpl string
	var selectIt bool

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				var (
					p   *project.Project
					err error
				)
				if tpl != "" {
					t, terr := templates.Get(tpl)
					if terr != nil {
						return terr
					}
					p, err = s.CreateWithSource(ctx, args[0], t.Source)
				} else {
					p, err = s.Create(ctx, args[0])
				}
				if err != nil {
					return err
				}
				printSuccess("Created project %s", StyleHighlight.Render(p.Name))
				printDetail("id: %s", p.ID)

				if selectIt {
					if _, err := s.Select(ctx, p.ID); err != nil {
						return err
					}
					printDetail("selected")
					return nil
				}
				printNextStep("Open it", fmt.Sprintf("%s project select %s", appName, shortID(p.ID)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tpl, "template", "t", "", "start from a template (see 'templates')")
	cmd.Flags().BoolVar(&selectIt, "select", false, "make the new project active")
	return cmd
}

func (c *CLI) projectListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects, most recently updated first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				ps, err := s.List(ctx)
				if err != nil {
					return err
				}
				if len(ps) == 0 {
					printInfo("No projects yet")
					printNextStep("Create one", appName+" project create \"My diagram\"")
					return nil
				}
				active, err := s.ActiveID(ctx)
				if err != nil {
					return err
				}
				printTable([]string{"", "ID", "Name", "Versions", "Updated"}, projectRows(ps, active))
				return nil
			})
		},
	}
}

func projectRows(ps []*project.Project, activeID string) [][]string {
	rows := make([][]string, 0, len(ps))
	for _, p := range ps {
		marker := " "
		if p.ID == activeID {
			marker = "●"
		}
		rows = append(rows, []string{
			marker,
			shortID(p.ID),
			p.Name,
			strconv.Itoa(p.LatestVersion()),
			formatRelativeTime(p.UpdatedAt),
		})
	}
	return rows
}

func (c *CLI) projectShowCommand() *cobra.Command {
	var sourceOnly bool

	cmd := &cobra.Command{
		Use:   "show [project]",
		Short: "Show a project and its source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				p, err := resolveProject(ctx, s, args[0])
				if err != nil {
					return err
				}
				if sourceOnly {
					fmt.Println(p.SourceText)
					return nil
				}
				printKeyValue("Name", p.Name)
				printKeyValue("ID", p.ID)
				printKeyValue("Created", p.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				printKeyValue("Updated", formatRelativeTime(p.UpdatedAt))
				printKeyValue("Versions", strconv.Itoa(len(p.Versions)))
				printNewline()
				fmt.Println(p.SourceText)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&sourceOnly, "source", false, "print only the source text")
	return cmd
}

func (c *CLI) projectRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename [project] [name]",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				p, err := resolveProject(ctx, s, args[0])
				if err != nil {
					return err
				}
				old := p.Name
				if p, err = s.Rename(ctx, p.ID, args[1]); err != nil {
					return err
				}
				printSuccess("Renamed %s %s %s", old, iconArrow, StyleHighlight.Render(p.Name))
				return nil
			})
		},
	}
}

func (c *CLI) projectDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete [project]",
		Aliases: []string{"rm"},
		Short:   "Delete a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				p, err := resolveProject(ctx, s, args[0])
				if err != nil {
					return err
				}
				if err := s.Delete(ctx, p.ID); err != nil {
					return err
				}
				printSuccess("Deleted project %s", p.Name)
				return nil
			})
		},
	}
}

func (c *CLI) projectSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select [project]",
		Short: "Make a project the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				p, err := resolveProject(ctx, s, args[0])
				if err != nil {
					return err
				}
				if _, err := s.Select(ctx, p.ID); err != nil {
					return err
				}
				printSuccess("Active project: %s", StyleHighlight.Render(p.Name))
				return nil
			})
		},
	}
}

func (c *CLI) projectHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history [project]",
		Short: "List a project's committed versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				p, err := resolveProject(ctx, s, args[0])
				if err != nil {
					return err
				}
				versions, err := s.History(ctx, p.ID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(versions))
				for _, v := range versions {
					rows = append(rows, []string{
						strconv.Itoa(v.Number),
						formatRelativeTime(v.CommittedAt),
						firstLine(v.SourceText),
					})
				}
				printTable([]string{"Version", "Committed", "Source"}, rows)
				return nil
			})
		},
	}
}

func (c *CLI) projectRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [project] [version]",
		Short: "Commit an earlier version as the newest one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[1])
			if err != nil || version <= 0 {
				return derrors.New(derrors.ErrCodeInvalidInput, "version must be a positive number, got %q", args[1])
			}
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				p, err := resolveProject(ctx, s, args[0])
				if err != nil {
					return err
				}
				if p, err = s.Restore(ctx, p.ID, version); err != nil {
					return err
				}
				printSuccess("Restored %s to version %d", p.Name, version)
				printDetail("now at version %d", p.LatestVersion())
				return nil
			})
		},
	}
}

func (c *CLI) projectCommitCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "commit [file]",
		Short: "Save a file's contents as the active project's source",
		Long: `Save a file's contents as a project's source.

The active project is used unless --project is given. Use - to read
from standard input. A new version is recorded when the text changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSource(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withStore(ctx, func(s *project.Store) error {
				var p *project.Project
				if target != "" {
					p, err = resolveProject(ctx, s, target)
				} else {
					p, err = s.Active(ctx)
				}
				if err != nil {
					return err
				}

				before := p.LatestVersion()
				if p, err = s.UpdateSource(ctx, p.ID, text); err != nil {
					return err
				}
				if p.LatestVersion() == before {
					printInfo("%s is unchanged", p.Name)
					return nil
				}
				printSuccess("Committed %s version %d", p.Name, p.LatestVersion())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&target, "project", "p", "", "project to commit to (default: active)")
	return cmd
}

// projectRenderCommand renders the active project through the full studio
// stack and exports it, as the studio's download buttons would.
func (c *CLI) projectRenderCommand() *cobra.Command {
	var formatsStr string
	var zoom float64
	opts := renderOpts{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the active project and export it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			return c.runProjectRender(cmd.Context(), zoom, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), png, pdf (comma-separated)")
	cmd.Flags().Float64Var(&zoom, "zoom", 1, "viewport zoom applied to PNG output (0.25-4)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")
	return cmd
}

func (c *CLI) runProjectRender(ctx context.Context, zoom float64, opts *renderOpts) error {
	a, err := c.openApp(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer a.Close()

	prog := newProgress(loggerFromContext(ctx))
	ticket, err := a.ctrl.Open(ctx)
	if err != nil {
		return err
	}
	if ticket == nil {
		return derrors.New(derrors.ErrCodeNoActiveProject, "no active project; run '%s project select' first", appName)
	}
	snap, err := ticket.Wait(ctx)
	if err != nil {
		return err
	}
	if !snap.HasArtifact() {
		return derrors.New(derrors.ErrCodeCompilation, "%s", snap.Message)
	}
	prog.step("compiled", "type", snap.Stats.Type, "cached", snap.Cached)
	a.ctrl.SetZoom(zoom)

	p, err := a.ctrl.Active(ctx)
	if err != nil {
		return err
	}
	name := slugify(p.Name)
	spin := newSpinner(ctx, "Exporting")
	spin.Start()
	paths, err := writeExports(ctx, a.export, name, opts, spin)
	spin.Stop()
	if err != nil {
		return err
	}
	prog.done("exported", "files", len(paths))

	printSuccess("Rendered %s", StyleHighlight.Render(p.Name))
	printInsights(snap.Stats, snap.Cached)
	for _, path := range paths {
		printFile(path)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// resolveProject finds a project by id, unique id prefix or exact name.
func resolveProject(ctx context.Context, s *project.Store, ref string) (*project.Project, error) {
	p, err := s.Get(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !derrors.Is(err, derrors.ErrCodeProjectNotFound) {
		return nil, err
	}

	ps, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var matches []*project.Project
	for _, p := range ps {
		if p.Name == ref {
			return p, nil
		}
		if strings.HasPrefix(p.ID, ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, derrors.New(derrors.ErrCodeProjectNotFound, "no project matches %q", ref)
	}
	return nil, derrors.New(derrors.ErrCodeInvalidInput, "%q matches %d projects; use a longer id", ref, len(matches))
}

// shortID abbreviates a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	const maxLen = 48
	if len(line) > maxLen {
		return line[:maxLen-1] + "…"
	}
	return line
}

// slugify turns a project name into a file name stem.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "diagram"
	}
	return out
}
