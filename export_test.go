package enginectl

import "time"

// ConfigSnapshot holds a copy of controllerConfig fields for test
// assertions. Function and interface fields are reduced to whether they
// are set.
type ConfigSnapshot struct {
	GracePeriod        time.Duration
	StopSettleTimeout  time.Duration
	OutputDrainTimeout time.Duration
	WorkDir            string
	OutputDir          string
	PrivilegedUser     string
	EscalationTool     string
	HasPrivilegeCheck  bool
	HasEscalation      bool
	HasClock           bool
	HasRegisterer      bool
	JournalPath        string
	LockPath           string
	LockTimeout        time.Duration
	HasLogger          bool
}

// ApplyOptionsForTesting creates a default controllerConfig, applies the
// given options, and returns a ConfigSnapshot of the result.
func ApplyOptionsForTesting(opts ...Option) ConfigSnapshot {
	cfg := defaultControllerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		GracePeriod:        cfg.GracePeriod,
		StopSettleTimeout:  cfg.StopSettleTimeout,
		OutputDrainTimeout: cfg.OutputDrainTimeout,
		WorkDir:            cfg.WorkDir,
		OutputDir:          cfg.OutputDir,
		PrivilegedUser:     cfg.PrivilegedUser,
		EscalationTool:     cfg.EscalationTool,
		HasPrivilegeCheck:  cfg.PrivilegeCheck != nil,
		HasEscalation:      cfg.Escalation != nil,
		HasClock:           cfg.Clock != nil,
		HasRegisterer:      cfg.MetricsRegisterer != nil,
		JournalPath:        cfg.JournalPath,
		LockPath:           cfg.LockPath,
		LockTimeout:        cfg.LockTimeout,
		HasLogger:          cfg.Logger != nil,
	}
}
