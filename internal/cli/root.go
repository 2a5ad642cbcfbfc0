package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/diagramcraft/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// Logging:
//   - Default: the [log] level from the config file (info unless changed)
//   - With --verbose (-v): debug level
//
// The logger is attached to the command context and reachable from every
// subcommand through loggerFromContext.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "diagramcraft is a diagram-as-code studio",
		Long: `diagramcraft compiles diagram source (mermaid flowcharts, the full mermaid
language through mermaid-cli, and Graphviz DOT) into SVG, keeps named
projects with version history, and exports diagrams as SVG, PNG or PDF.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/diagramcraft/config.toml)")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.projectCommand())
	root.AddCommand(c.studioCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.templatesCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
