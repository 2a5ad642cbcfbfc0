package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/diagramcraft/internal/httpapi"
)

// serveCommand runs the HTTP API on the same studio stack as the terminal
// studio.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string
	var noCache bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the studio over HTTP",
		Long: `Serve the studio over HTTP.

The API drives one working copy and one active project, exactly like the
terminal studio. See GET /api/templates for the built-in examples and
GET /healthz for a liveness probe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr, noCache)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string, noCache bool) error {
	a, err := c.openApp(ctx, noCache)
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	if _, err := a.ctrl.Open(ctx); err != nil {
		c.Logger.Warn("could not open active project", "error", err)
	}

	srv := httpapi.New(a.ctrl, a.export, c.Logger)
	printInfo("Serving on %s", StyleLink.Render("http://"+addr))
	return srv.ListenAndServe(ctx, addr, time.Duration(a.cfg.Server.ReadTimeoutSeconds)*time.Second)
}
