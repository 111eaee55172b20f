package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/giantswarm/enginectl"
)

// flags holds command-line overrides of the configuration file.
type flags struct {
	configPath      string
	logLevel        string
	logFormat       string
	gracePeriod     time.Duration
	journal         string
	outputDir       string
	lockFile        string
	metricsTextfile string
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "Path to the YAML configuration file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	fs.DurationVar(&f.gracePeriod, "grace-period", 0, "How long to wait for the start or stop command to exit")
	fs.StringVar(&f.journal, "journal", "", "SQLite file recording every lifecycle action")
	fs.StringVar(&f.outputDir, "output-dir", "", "Directory receiving the output files of spawned commands")
	fs.StringVar(&f.lockFile, "lock-file", "", "File locked for the duration of each action")
	fs.StringVar(&f.metricsTextfile, "metrics-textfile", "", "Write lifecycle metrics to this node-exporter textfile")
}

// apply overlays the flags the user set on cfg.
func (f *flags) apply(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if fs.Changed("grace-period") {
		cfg.GracePeriod = f.gracePeriod
	}
	if fs.Changed("journal") {
		cfg.Journal = f.journal
	}
	if fs.Changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if fs.Changed("lock-file") {
		cfg.LockFile = f.lockFile
	}
	if fs.Changed("metrics-textfile") {
		cfg.MetricsTextfile = f.metricsTextfile
	}
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	flags flags
	cfg   *Config
	log   *slog.Logger
}

// NewRootCommand creates the root Cobra command for enginectl.
func NewRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "enginectl",
		Short: "Start and stop the local storage engine",
		Long: `enginectl runs the configured start or stop command of the local storage
engine once, escalating through sudo when not running as root, and reports
whether the engine was marked alive.

It does not supervise the engine: there are no health checks and no restarts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	a.flags.register(cmd.PersistentFlags())

	cmd.AddCommand(newStartCmd(a))
	cmd.AddCommand(newStopCmd(a))
	cmd.AddCommand(newHistoryCmd(a))

	return cmd
}

// load reads the configuration, applies flag overrides and installs the
// logger.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.flags.configPath)
	if err != nil {
		return err
	}
	a.flags.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.cfg = cfg
	a.log = newLogger(cmd.ErrOrStderr(), cfg)
	enginectl.SetLogger(a.log.With("component", "enginectl"))
	return nil
}

func (a *app) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
