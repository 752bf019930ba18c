// Package cli implements the depscan command-line interface.
//
// # Commands
//
//   - scan: resolve a range of the package catalog into an output directory
//   - resolve: resolve one package or manifest and print its artifact
//   - resume: print where an interrupted scan should continue
//   - merge: combine the artifacts of several scan workers
//   - failstats: classify the failure ledgers of one or more scans
//   - analyze: run static analyzers over a list of package archives
//   - render: draw an artifact as a node-link diagram
//   - verify: validate artifacts against the artifact schema
//   - cache: inspect or clear the response cache
//
// # Configuration
//
// Settings are read by [config.Load] from depscan.yaml, DEPSCAN_*
// environment variables and flags. --config names an explicit file.
//
// # Logging
//
// All commands log through charmbracelet/log to stderr; --verbose (-v)
// enables debug output, including scan, cache and request events. The
// logger travels in the command context.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matzehuels/depscan/pkg/buildinfo"
	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/observability"
)

const appName = "depscan"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	viper      *viper.Viper
	configFile string
	cfg        *config.Config
}

// New creates a CLI logging to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		viper:  config.New(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "depscan resolves the dependency trees of a Python package catalog",
		Long:          `depscan resolves the full transitive dependency tree of every package in a (mirrored) Python package index and records each tree as a JSON artifact, tolerating slow and partially mirrored indexes.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			observability.Install(observability.NewLogHooks(c.Logger))
			return nil
		},
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default: ./depscan.yaml)")

	root.AddCommand(c.scanCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.resumeCommand())
	root.AddCommand(c.mergeCommand())
	root.AddCommand(c.failstatsCommand())
	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.verifyCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// configFor binds flags of cmd, given as key/flag name pairs, over the
// config keys and loads the configuration once.
func (c *CLI) configFor(cmd *cobra.Command, bindings ...string) (*config.Config, error) {
	for i := 0; i+1 < len(bindings); i += 2 {
		config.BindFlag(c.viper, bindings[i], cmd.Flags().Lookup(bindings[i+1]))
	}
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.viper, c.configFile)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}
