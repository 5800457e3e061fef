package resilience

import "time"

const (
	DefaultThreshold    = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultProbeSuccess = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Name         string        // used in logs
	Threshold    int           // consecutive failures before opening
	ResetTimeout time.Duration // wait before letting a probe through
	ProbeSuccess int           // probe successes needed to close
}

// DefaultConfig returns defaults for the inference backend.
func DefaultConfig() Config {
	return Config{
		Name:         "inference",
		Threshold:    DefaultThreshold,
		ResetTimeout: DefaultResetTimeout,
		ProbeSuccess: DefaultProbeSuccess,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "inference"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.ProbeSuccess <= 0 {
		c.ProbeSuccess = DefaultProbeSuccess
	}
	return c
}
