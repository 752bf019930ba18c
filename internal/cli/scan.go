package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/scan"
	"github.com/matzehuels/depscan/pkg/server"
)

// scanCommand creates the scan command.
func (c *CLI) scanCommand() *cobra.Command {
	var packagesFile string

	cmd := &cobra.Command{
		Use:   "scan <start> <end> <outputDir>",
		Short: "Resolve a range of the package catalog",
		Long: `Resolve packages [start, end) of the catalog and write one artifact per
package to <outputDir>/data and one ledger line per package to
<outputDir>/log. A negative start means 0; a negative or oversized end means
the end of the catalog.

The catalog is the sorted project list of the mirror (or of the network
index when no mirror is configured), or the lines of --packages.`,
		Example: `  # Worker 3 of 10 over a 400k package mirror
  depscan scan 120000 160000 out/worker3 --mirror /srv/pypi --timeout 10m`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(args[0], args[1])
			if err != nil {
				return err
			}
			cfg, err := c.configFor(cmd,
				"scan.timeout", "timeout",
				"mirror.root", "mirror",
				"server.addr", "status-addr",
				"target.python", "python")
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), cfg, start, end, args[2], packagesFile)
		},
	}

	cmd.Flags().StringVar(&packagesFile, "packages", "", "read the catalog from a file, one name per line")
	cmd.Flags().Duration("timeout", scan.DefaultTimeout, "time budget per package")
	cmd.Flags().String("mirror", "", "local mirror root (contains json/)")
	cmd.Flags().String("status-addr", "", "serve progress over HTTP on this address")
	cmd.Flags().String("python", "", "target Python version")
	return cmd
}

func parseRange(startArg, endArg string) (int, int, error) {
	start, err := strconv.Atoi(startArg)
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "start index %q", startArg)
	}
	end, err := strconv.Atoi(endArg)
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeInvalidInput, err, "end index %q", endArg)
	}
	return start, end, nil
}

func runScan(ctx context.Context, cfg *config.Config, start, end int, outDir, packagesFile string) error {
	logger := loggerFromContext(ctx)

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := catalog(ctx, st, packagesFile)
	if err != nil {
		return err
	}

	var sinks []scan.Sink
	if cfg.Sink.MongoURI != "" {
		mongo, err := scan.NewMongoSink(ctx, scan.MongoConfig{
			URI:        cfg.Sink.MongoURI,
			Database:   cfg.Sink.MongoDB,
			Collection: cfg.Sink.MongoCollection,
		})
		if err != nil {
			return err
		}
		defer mongo.Close(context.Background())
		sinks = append(sinks, mongo)
	}

	progress := &scan.Progress{}
	if cfg.Server.Addr != "" {
		srvCtx, stop := context.WithCancel(ctx)
		defer stop()
		srv := server.New(server.Options{
			Addr:     cfg.Server.Addr,
			DataDir:  filepath.Join(outDir, scan.DataDir),
			Progress: progress,
			Logger:   logger,
		})
		go func() {
			if err := srv.ListenAndServe(srvCtx); err != nil {
				logger.Warn("status server stopped", "err", err)
			}
		}()
	}

	driver := scan.NewDriver(st.resolver, scan.Options{
		Timeout:  cfg.Scan.Timeout,
		MaxDepth: cfg.Scan.MaxDepth,
		Sinks:    sinks,
		Progress: progress,
		Logger:   logger,
	})
	sum, err := driver.Run(ctx, items, start, end, outDir)
	if sum != nil {
		printSummary(sum)
	}
	return err
}

// catalog returns the package list a scan or resume indexes into.
func catalog(ctx context.Context, st *stack, packagesFile string) ([]string, error) {
	if packagesFile != "" {
		return readPackageList(packagesFile)
	}
	prog := newProgress(loggerFromContext(ctx))
	items, err := st.source.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("Listed %d packages", len(items)))
	return items, nil
}

// readPackageList reads one package name per line. Blank lines and lines
// starting with # are ignored.
func readPackageList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", path)
	}
	defer f.Close()

	var items []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", path)
	}
	return items, nil
}

// resumeCommand creates the resume command.
func (c *CLI) resumeCommand() *cobra.Command {
	var packagesFile string

	cmd := &cobra.Command{
		Use:   "resume <outputDir>",
		Short: "Print the index an interrupted scan should restart from",
		Long: `Read the last success and failure ledger entries of a scan output directory
and print the catalog index after the later of the two. Pass the result as
<start> to scan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lastSuccess, lastFailure, err := scan.LastEntries(filepath.Join(args[0], scan.LogDir))
			if err != nil {
				return err
			}

			var items []string
			if packagesFile != "" {
				items, err = readPackageList(packagesFile)
			} else {
				var cfg *config.Config
				if cfg, err = c.configFor(cmd, "mirror.root", "mirror"); err != nil {
					return err
				}
				var st *stack
				if st, err = openStack(ctx, cfg, loggerFromContext(ctx)); err != nil {
					return err
				}
				defer st.Close()
				items, err = catalog(ctx, st, "")
			}
			if err != nil {
				return err
			}

			idx, err := scan.ResumeOffset(items, lastSuccess, lastFailure)
			if err != nil {
				return err
			}
			loggerFromContext(ctx).Debug("resume point", "last_success", lastSuccess, "last_failure", lastFailure)
			fmt.Fprintln(cmd.OutOrStdout(), idx)
			return nil
		},
	}
	cmd.Flags().StringVar(&packagesFile, "packages", "", "read the catalog from a file, one name per line")
	cmd.Flags().String("mirror", "", "local mirror root (contains json/)")
	return cmd
}

// mergeCommand creates the merge command.
func (c *CLI) mergeCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "merge <dst> <workerDir>...",
		Short: "Copy the artifacts of scan workers into one directory",
		Long: `Copy <workerDir>/data/*.json into <dst>, creating it if needed. Files already present with the
same content are skipped. Files present with different content are reported
and left alone unless --overwrite is given.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(args[0], 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", args[0])
			}
			prog := newProgress(loggerFromContext(cmd.Context()))
			rep, err := scan.Merge(args[0], args[1:], overwrite, loggerFromContext(cmd.Context()))
			if err != nil {
				return err
			}
			prog.done("Merge finished")
			printKeyValue("Copied", strconv.Itoa(len(rep.Copied)))
			printKeyValue("Identical", strconv.Itoa(len(rep.Identical)))
			printKeyValue("Replaced", strconv.Itoa(len(rep.Replaced)))
			printKeyValue("Skipped", strconv.Itoa(len(rep.Skipped)))
			for _, name := range rep.Conflicts {
				printWarning("Conflict: %s", name)
			}
			if len(rep.Conflicts) > 0 {
				printNextStep("Replace conflicting files", "depscan merge --overwrite "+strings.Join(args, " "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace conflicting files")
	return cmd
}

func printSummary(sum *scan.Summary) {
	printNewline()
	printSuccess("Scanned %s packages", StyleNumber.Render(strconv.Itoa(sum.Done)))
	printKeyValue("Range", fmt.Sprintf("%d - %d", sum.Start, sum.End))
	printKeyValue("Success", strconv.Itoa(sum.Success))
	printKeyValue("Fail", strconv.Itoa(sum.Fail))
	printKeyValue("Elapsed", sum.Elapsed.Round(time.Second).String())
}
