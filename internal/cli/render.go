package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/render"
)

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var (
		format   string
		output   string
		detailed bool
		scale    float64
	)

	cmd := &cobra.Command{
		Use:   "render <artifact.json>",
		Short: "Draw an artifact as a node-link diagram",
		Long: `Render the dependency graph of an artifact with Graphviz. Formats: dot, svg,
pdf and png. pdf and png need rsvg-convert on PATH.`,
		Example: `  depscan render out/data/requests_2.31.0.json
  depscan render django.json -f png -o django.png --detailed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dump, err := readDumpFile(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "." + format
			}

			prog := newProgress(loggerFromContext(cmd.Context()))
			data, err := render.Render(cmd.Context(), dump, format, render.Options{Detailed: detailed, Scale: scale})
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", output)
			}
			prog.done("Rendered " + dump.RootPackage)
			printSuccess("Rendered %s %s", dump.RootPackage, dump.RootVersion())
			printKeyValue("Packages", strconv.Itoa(len(dump.Packages)))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", render.FormatSVG, "output format (dot, svg, pdf, png)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: <artifact>.<format>)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "label nodes with depth and sources and edges with constraints")
	cmd.Flags().Float64Var(&scale, "scale", 1, "png scale factor")
	return cmd
}

// verifyCommand creates the verify command.
func (c *CLI) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <artifact.json>...",
		Short: "Validate artifacts against the artifact schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invalid := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", path)
				}
				res, err := depgraph.Validate(data)
				if err != nil {
					return err
				}
				if res.Valid {
					printSuccess("%s", path)
					continue
				}
				invalid++
				printError("%s", path)
				for _, e := range res.Errors {
					printDetail("%s", e)
				}
			}
			if invalid > 0 {
				return errors.New(errors.ErrCodeInvalidInput, "%d of %d artifacts are invalid", invalid, len(args))
			}
			return nil
		},
	}
}

func readDumpFile(path string) (*depgraph.Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()
	return depgraph.ReadDump(f)
}
