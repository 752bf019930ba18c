package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/failstats"
)

// failstatsCommand creates the failstats command.
func (c *CLI) failstatsCommand() *cobra.Command {
	var (
		format    string
		rerunFile string
	)

	cmd := &cobra.Command{
		Use:   "failstats <pattern>...",
		Short: "Classify the failure ledgers of one or more scans",
		Long: `Read every failure ledger matching the patterns (** is supported), group
the failures into known categories and print the counts. Packages that are
worth another attempt (everything except timeouts) go to --rerun.`,
		Example: `  depscan failstats 'out/worker*/log/fail.txt'
  depscan failstats 'out/**/fail.txt' -f yaml --rerun rerun.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failures, err := failstats.Collect(args)
			if err != nil {
				return err
			}
			rep := failstats.Classify(failures, failstats.DefaultRules())
			if err := rep.Write(cmd.OutOrStdout(), format); err != nil {
				return err
			}
			if rerunFile == "" {
				return nil
			}
			f, err := os.Create(rerunFile)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", rerunFile)
			}
			if err := rep.WriteRerun(f); err != nil {
				f.Close()
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", rerunFile)
			}
			loggerFromContext(cmd.Context()).Info("rerun list written", "file", rerunFile, "packages", len(rep.Rerun))
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", failstats.FormatText, "output format (text, json, yaml)")
	cmd.Flags().StringVar(&rerunFile, "rerun", "", "write the packages to retry to this file")
	return cmd
}
