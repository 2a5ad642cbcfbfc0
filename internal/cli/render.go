package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/export"
)

// stdinName is the input argument that reads source from standard input.
const stdinName = "-"

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output  string   // output file (single format) or base path (multiple)
	formats []string // svg, png, pdf
	engine  string   // overrides [engine] name
	theme   string   // overrides [engine] theme
	scale   float64  // overrides [export] scale when positive
	noCache bool
}

// renderCommand compiles a diagram file once and writes the requested
// formats. It does not touch the project store.
func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Compile a diagram file to SVG, PNG or PDF",
		Long: `Compile a diagram file and write it in one or more formats.

The engine is picked from the file's header line unless --engine is given.
Use - to read the source from standard input.`,
		Example: `  diagramcraft render flow.mmd
  diagramcraft render flow.mmd -f svg,png -o out/flow
  cat graph.dot | diagramcraft render - --engine graphviz -o graph.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), png, pdf (comma-separated)")
	cmd.Flags().StringVar(&opts.engine, "engine", "", "engine: auto, flowchart, graphviz, mermaid (default from config)")
	cmd.Flags().StringVar(&opts.theme, "theme", "", "theme: default, dark, forest, neutral (default from config)")
	cmd.Flags().Float64Var(&opts.scale, "scale", 0, "PNG scale factor (default from config)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable caching")

	return cmd
}

// validateFormats checks that all requested formats are exportable.
func validateFormats(formats []string) error {
	if len(formats) == 0 {
		return derrors.New(derrors.ErrCodeInvalidFormat, "no output format given")
	}
	for _, f := range formats {
		if _, err := export.ParseFormat(f); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLI) runRender(ctx context.Context, input string, opts *renderOpts) error {
	logger := loggerFromContext(ctx)

	cfg, err := c.config()
	if err != nil {
		return err
	}
	if opts.scale > 0 {
		cfg.Export.Scale = opts.scale
	}

	source, err := readSource(input)
	if err != nil {
		return err
	}

	rs, err := c.openRenderStack(ctx, cfg, engineOverrides{name: opts.engine, theme: opts.theme}, opts.noCache)
	if err != nil {
		return err
	}
	defer rs.Close()

	rast, err := export.NewRasterizer(cfg.Export.Rasterizer, export.RasterizerOptions{
		RsvgBin:    cfg.Export.RsvgBin,
		ChromePath: cfg.Export.ChromePath,
	})
	if err != nil {
		return err
	}

	logger.Infof("Rendering %s", displayName(input))
	prog := newProgress(logger)
	out := rs.gateway.Compile(ctx, source, 1)
	if out.Failed() {
		return derrors.New(derrors.ErrCodeCompilation, "%s", out.Message)
	}
	prog.step("compiled", "type", out.Stats.Type, "engine", out.Artifact.Engine, "cached", out.Cached)

	exp := export.New(export.Config{
		Artifacts:  export.Static{Artifact: out.Artifact},
		Scale:      cfg.Export.Scale,
		Rasterizer: rast,
		Cache:      rs.cache,
		Keyer:      rs.keyer,
		Logger:     c.Logger,
	})
	spin := newSpinner(ctx, "Exporting")
	spin.Start()
	paths, err := writeExports(ctx, exp, input, opts, spin)
	spin.Stop()
	if err != nil {
		return err
	}
	prog.done("exported", "files", len(paths))

	printSuccess("Rendered %s", displayName(input))
	printInsights(out.Stats, out.Cached)
	for _, p := range paths {
		printFile(p)
	}
	return nil
}

// writeExports exports every requested format and writes the files. It
// returns the written paths in format order. spin may be nil.
func writeExports(ctx context.Context, exp *export.Service, input string, opts *renderOpts, spin *Spinner) ([]string, error) {
	logger := loggerFromContext(ctx)
	base := basePath(opts.output, input)

	var paths []string
	for i, format := range opts.formats {
		spin.SetMessage(fmt.Sprintf("Exporting %s (%d/%d)", format, i+1, len(opts.formats)))
		d, err := exp.Export(ctx, format)
		if err != nil {
			return paths, fmt.Errorf("%s: %w", format, err)
		}

		path := base + "." + strings.ToLower(strings.TrimSpace(format))
		if len(opts.formats) == 1 && opts.output != "" {
			path = opts.output
		}
		if err := writeFile(path, d.Data); err != nil {
			return paths, err
		}
		logger.Debugf("Generated %s: %d bytes", path, len(d.Data))
		paths = append(paths, path)
	}
	return paths, nil
}

// basePath derives the base output path from the output and input file paths.
// If output is empty, it strips the extension from input. If output carries a
// format extension (.svg, .png, .pdf), that extension is stripped.
func basePath(output, input string) string {
	if output == "" {
		if input == stdinName || input == "" {
			return "diagram"
		}
		return strings.TrimSuffix(input, filepath.Ext(input))
	}
	ext := filepath.Ext(output)
	if _, err := export.ParseFormat(strings.TrimPrefix(ext, ".")); err == nil && ext != "" {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

func readSource(input string) (string, error) {
	var (
		data []byte
		err  error
	)
	if input == stdinName {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", displayName(input), err)
	}
	return string(data), nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func displayName(input string) string {
	if input == stdinName {
		return "stdin"
	}
	return input
}
