package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/depgraph"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/manifest"
	"github.com/matzehuels/depscan/pkg/pep440"
	"github.com/matzehuels/depscan/pkg/resolve"
)

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		output       string
		manifestPath string
	)

	cmd := &cobra.Command{
		Use:   "resolve [package] [constraint]",
		Short: "Resolve one package or manifest",
		Long: `Resolve a single package and print its artifact, or resolve the requirements
of a pyproject.toml or requirements.txt with --manifest and print the pinned
package set.`,
		Example: `  depscan resolve requests
  depscan resolve django ">=4,<5" -o django.json
  depscan resolve --manifest pyproject.toml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if manifestPath != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.configFor(cmd,
				"scan.timeout", "timeout",
				"mirror.root", "mirror",
				"target.python", "python")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Scan.Timeout)
			defer cancel()

			if manifestPath != "" {
				return resolveManifest(ctx, cfg, manifestPath, cmd.OutOrStdout())
			}
			req := resolve.Requirement{Name: args[0], Constraint: "*"}
			if len(args) == 2 {
				req.Constraint = args[1]
			}
			return resolvePackage(ctx, cfg, req, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the artifact to a file instead of stdout")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "resolve the requirements of a manifest file")
	cmd.Flags().Duration("timeout", 15*time.Minute, "time budget for the resolution")
	cmd.Flags().String("mirror", "", "local mirror root (contains json/)")
	cmd.Flags().String("python", "", "target Python version")
	return cmd
}

func solve(ctx context.Context, cfg *config.Config, reqs []resolve.Requirement) (*resolve.Solution, error) {
	st, err := openStack(ctx, cfg, loggerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	spinner := newSpinnerWithContext(ctx, "Resolving "+fmt.Sprint(reqs))
	spinner.Start()
	sol, err := st.resolver.Resolve(ctx, reqs)
	spinner.Stop()
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrCodeDeadline, err, "resolve %v", reqs)
		}
		return nil, err
	}
	return sol, nil
}

func resolvePackage(ctx context.Context, cfg *config.Config, req resolve.Requirement, output string, stdout io.Writer) error {
	prog := newProgress(loggerFromContext(ctx))
	sol, err := solve(ctx, cfg, []resolve.Requirement{req})
	if err != nil {
		return err
	}
	g, err := depgraph.Extract(sol, depgraph.Options{MaxDepth: cfg.Scan.MaxDepth})
	if err != nil {
		return err
	}
	dump := depgraph.BuildDump(g, sol.Sources)
	prog.done(fmt.Sprintf("Resolved %d packages", len(dump.Packages)))

	if output == "" {
		return dump.WriteJSON(stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", output)
	}
	if err := dump.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", output)
	}
	printSuccess("Resolved %s", req)
	printKeyValue("Packages", strconv.Itoa(len(dump.Packages)))
	printFile(output)
	printNextStep("Render it", "depscan render "+output)
	return nil
}

func resolveManifest(ctx context.Context, cfg *config.Config, path string, stdout io.Writer) error {
	m, err := manifest.Parse(path, pep440.DefaultEnvironment(cfg.Target.Python))
	if err != nil {
		return err
	}
	logger := loggerFromContext(ctx)
	for _, s := range m.Skipped {
		logger.Warn("requirement skipped", "manifest", m.Name, "requirement", s)
	}
	if len(m.Requirements) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "%s declares no installable requirements", path)
	}

	sol, err := solve(ctx, cfg, m.Requirements)
	if err != nil {
		return err
	}
	writePins(stdout, sol.Packages)
	return nil
}

// writePins prints name==version lines, direct requirements first.
func writePins(w io.Writer, pkgs []resolve.Package) {
	sorted := append([]resolve.Package(nil), pkgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Depth != sorted[j].Depth {
			return sorted[i].Depth < sorted[j].Depth
		}
		return sorted[i].Key() < sorted[j].Key()
	})
	for _, p := range sorted {
		fmt.Fprintf(w, "%s==%s\n", p.Name, p.Version)
	}
}
