package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/giantswarm/enginectl"
	"github.com/giantswarm/enginectl/internal/fileutil"
)

// observedState records whether the controller changed liveness during one
// invocation. The CLI keeps no state between runs.
type observedState struct {
	set   bool
	alive bool
}

func (s *observedState) SetAlive(alive bool) {
	s.set = true
	s.alive = alive
}

func (s *observedState) String() string {
	switch {
	case !s.set:
		return "unchanged"
	case s.alive:
		return "alive"
	default:
		return "stopped"
	}
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the storage engine's start command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAction(cmd, enginectl.Controller.Start)
		},
	}
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Run the storage engine's stop command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAction(cmd, enginectl.Controller.Stop)
		},
	}
}

// runAction builds a controller, runs one action and prints the resulting
// liveness. Metrics are written even when the action failed to spawn.
func (a *app) runAction(cmd *cobra.Command, action func(enginectl.Controller, context.Context) error) error {
	var (
		reg        *prometheus.Registry
		registerer prometheus.Registerer
	)
	if a.cfg.MetricsTextfile != "" {
		reg = prometheus.NewRegistry()
		registerer = reg
	}

	state := &observedState{}
	ctrl := enginectl.NewController(a.cfg, state, a.cfg.Options(registerer)...)
	defer func() {
		if err := ctrl.Close(); err != nil {
			a.log.Warn("Unable to close journal", "error", err)
		}
	}()

	err := action(ctrl, a.ctx(cmd))

	if reg != nil {
		if werr := writeTextfile(a.cfg.MetricsTextfile, reg); werr != nil {
			a.log.Warn("Unable to write metrics textfile", "path", a.cfg.MetricsTextfile, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "storage engine: %s\n", state)
	return nil
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if err := fileutil.EnsureDirForFile(path); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
