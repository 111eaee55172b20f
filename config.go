package enginectl

import "github.com/giantswarm/enginectl/internal/core"

// controllerConfig holds configuration for a Controller. This unexported
// type wraps core.ControllerConfig via embedding, keeping internal/core types
// out of the public API signature while avoiding field-by-field duplication.
type controllerConfig struct {
	core.ControllerConfig
}

// defaultControllerConfig returns a controllerConfig populated with all
// default values.
func defaultControllerConfig() controllerConfig {
	return controllerConfig{core.ControllerConfig{
		GracePeriod:        DefaultGracePeriod,
		StopSettleTimeout:  DefaultStopSettleTimeout,
		OutputDrainTimeout: DefaultOutputDrainTimeout,
		WorkDir:            DefaultWorkDir,
		PrivilegedUser:     DefaultPrivilegedUser,
		EscalationTool:     DefaultEscalationTool,
	}}
}

// toCoreConfig returns the embedded core.ControllerConfig.
func (c controllerConfig) toCoreConfig() core.ControllerConfig {
	return c.ControllerConfig
}
