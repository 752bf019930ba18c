package cli

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/analysis"
	"github.com/matzehuels/depscan/pkg/errors"
)

// analyzeCommand creates the analyze command.
func (c *CLI) analyzeCommand() *cobra.Command {
	var toolNames []string

	cmd := &cobra.Command{
		Use:   "analyze <tasks.json> <outputDir>",
		Short: "Run static analyzers over a list of packages",
		Long: `Run each analyzer over every task of a JSON list of
{"name", "version", "src"} objects, where src is a source archive or an
unpacked directory. Tools run in a worker pool; a tool that produces no
output for --freeze-interval is stopped and recorded as stuck.

Output layout per tool:
  <outputDir>/<tool>/log/<name>@<version>/stdout.txt, stderr.txt
  <outputDir>/<tool>/report/<name>@<version>.txt`,
		Example: `  depscan analyze top1000.json out/analysis --tools bandit --workers 32`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.configFor(cmd,
				"analysis.workers", "workers",
				"analysis.freeze_interval", "freeze-interval")
			if err != nil {
				return err
			}
			tools, err := selectTools(toolNames)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "open %s", args[0])
			}
			tasks, err := analysis.ReadTasks(f)
			f.Close()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			prog := newProgress(loggerFromContext(ctx))
			runner := analysis.NewRunner(analysis.Options{
				Workers:        cfg.Analysis.Workers,
				Tools:          tools,
				FreezeInterval: cfg.Analysis.FreezeInterval,
				Grace:          cfg.Analysis.Grace,
				Logger:         loggerFromContext(ctx),
			})
			results, err := runner.Run(ctx, tasks, args[1])
			prog.done("Analysis finished")
			printAnalysisSummary(results)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&toolNames, "tools", nil, "analyzers to run (default: bandit,pyflakes)")
	cmd.Flags().Int("workers", analysis.DefaultWorkers, "concurrent packages")
	cmd.Flags().Duration("freeze-interval", analysis.DefaultFreezeInterval, "stop a tool after this long without output")
	return cmd
}

func selectTools(names []string) ([]analysis.Tool, error) {
	if len(names) == 0 {
		return analysis.DefaultTools(), nil
	}
	tools := make([]analysis.Tool, 0, len(names))
	for _, name := range names {
		t, ok := analysis.ToolByName(strings.TrimSpace(name))
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "unknown tool %q", name)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func printAnalysisSummary(results []analysis.Result) {
	ok, stuck, failed := 0, 0, 0
	var elapsed time.Duration
	for _, r := range results {
		elapsed += r.Elapsed
		switch {
		case r.Err == nil && r.Report != "":
			ok++
		case errors.Is(r.Err, errors.ErrCodeStuck):
			stuck++
		case r.Err != nil:
			failed++
		}
	}
	printNewline()
	printSuccess("Analyzed %s tool runs", StyleNumber.Render(strconv.Itoa(len(results))))
	printKeyValue("Reports", strconv.Itoa(ok))
	printKeyValue("Stuck", strconv.Itoa(stuck))
	printKeyValue("Failed", strconv.Itoa(failed))
	printKeyValue("Tool time", elapsed.Round(time.Second).String())
}
