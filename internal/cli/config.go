package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/enginectl"
)

// Config is the on-disk configuration of the enginectl command. It is also
// the CommandSource of the controller the command builds.
type Config struct {
	StartCommand       string        `yaml:"start_script"`
	StopCommand        string        `yaml:"stop_script"`
	GracePeriod        time.Duration `yaml:"grace_period"`
	StopSettleTimeout  time.Duration `yaml:"stop_settle_timeout"`
	OutputDrainTimeout time.Duration `yaml:"output_drain_timeout"`
	WorkDir            string        `yaml:"work_dir"`
	OutputDir          string        `yaml:"output_dir"`
	PrivilegedUser     string        `yaml:"privileged_user"`
	EscalationTool     string        `yaml:"escalation_tool"`
	Journal            string        `yaml:"journal"`
	LockFile           string        `yaml:"lock_file"`
	LockTimeout        time.Duration `yaml:"lock_timeout"`
	MetricsTextfile    string        `yaml:"metrics_textfile"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
}

// DefaultConfig returns a Config holding the library defaults.
func DefaultConfig() *Config {
	return &Config{
		GracePeriod:        enginectl.DefaultGracePeriod,
		StopSettleTimeout:  enginectl.DefaultStopSettleTimeout,
		OutputDrainTimeout: enginectl.DefaultOutputDrainTimeout,
		WorkDir:            enginectl.DefaultWorkDir,
		OutputDir:          DefaultOutputDir(),
		PrivilegedUser:     enginectl.DefaultPrivilegedUser,
		EscalationTool:     enginectl.DefaultEscalationTool,
		LockTimeout:        enginectl.DefaultLockTimeout,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// DefaultOutputDir is where command output goes by default. The command
// exits right after the grace period, so a start command still running then
// must not be left writing into a pipe nobody reads.
func DefaultOutputDir() string {
	return filepath.Join(os.TempDir(), "enginectl")
}

// LoadConfig returns the defaults overlaid with the YAML file at path. An
// empty path returns the defaults. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// StartupScript implements enginectl.CommandSource.
func (c *Config) StartupScript() string { return c.StartCommand }

// StopScript implements enginectl.CommandSource.
func (c *Config) StopScript() string { return c.StopCommand }

// Validate checks the values the controller options would otherwise panic
// on, reporting every violation at once.
func (c *Config) Validate() error {
	var errs []error

	if c.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("grace_period must be greater than 0, got %s", c.GracePeriod))
	}
	if c.StopSettleTimeout < 0 {
		errs = append(errs, fmt.Errorf("stop_settle_timeout must not be negative, got %s", c.StopSettleTimeout))
	}
	if c.OutputDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("output_drain_timeout must be greater than 0, got %s", c.OutputDrainTimeout))
	}
	if !filepath.IsAbs(c.WorkDir) {
		errs = append(errs, fmt.Errorf("work_dir must be an absolute path, got %q", c.WorkDir))
	}
	if !filepath.IsAbs(c.OutputDir) {
		errs = append(errs, fmt.Errorf("output_dir must be an absolute path, got %q", c.OutputDir))
	}
	if c.PrivilegedUser == "" {
		errs = append(errs, errors.New("privileged_user must not be empty"))
	}
	if c.EscalationTool == "" {
		errs = append(errs, errors.New("escalation_tool must not be empty"))
	}
	if c.LockFile != "" && c.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lock_timeout must be greater than 0, got %s", c.LockTimeout))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Options translates c into controller options. reg may be nil.
func (c *Config) Options(reg prometheus.Registerer) []enginectl.Option {
	opts := []enginectl.Option{
		enginectl.WithGracePeriod(c.GracePeriod),
		enginectl.WithStopSettleTimeout(c.StopSettleTimeout),
		enginectl.WithOutputDrainTimeout(c.OutputDrainTimeout),
		enginectl.WithWorkDir(c.WorkDir),
		enginectl.WithOutputDir(c.OutputDir),
		enginectl.WithPrivilegedUser(c.PrivilegedUser),
		enginectl.WithEscalationTool(c.EscalationTool),
	}
	if c.Journal != "" {
		opts = append(opts, enginectl.WithJournal(c.Journal))
	}
	if c.LockFile != "" {
		opts = append(opts, enginectl.WithLockFile(c.LockFile, c.LockTimeout))
	}
	if reg != nil {
		opts = append(opts, enginectl.WithMetricsRegisterer(reg))
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, c *Config) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
