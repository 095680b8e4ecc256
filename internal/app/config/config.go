// Package config provides configuration loading for exeflow.
package config

import (
	"fmt"
	"time"
)

// Config is the full runtime configuration
type Config struct {
	Database Database `koanf:"database"`
	Agent    Agent    `koanf:"agent"`
	Breaker  Breaker  `koanf:"breaker"`
	Backoff  Backoff  `koanf:"backoff"`
	Detector Detector `koanf:"detector"`
	Runner   Runner   `koanf:"runner"`
	Metrics  Metrics  `koanf:"metrics"`
	Log      Log      `koanf:"log"`
}

// Database configures the SQLite store
type Database struct {
	Path string `koanf:"path"`
}

// Agent configures agent CLI invocation
type Agent struct {
	Type            string        `koanf:"type"` // claude-code or mock
	Binary          string        `koanf:"binary"`
	Model           string        `koanf:"model"`
	DecisionTimeout time.Duration `koanf:"decision_timeout"`
	TaskTimeout     time.Duration `koanf:"task_timeout"`
	MaxTurns        int           `koanf:"max_turns"`
	AllowedTools    []string      `koanf:"allowed_tools"`
}

// Breaker configures the agent circuit breaker
type Breaker struct {
	FailureThreshold         int           `koanf:"failure_threshold"`
	FailureWindow            time.Duration `koanf:"failure_window"`
	ResetTimeout             time.Duration `koanf:"reset_timeout"`
	HalfOpenSuccessThreshold int           `koanf:"half_open_success_threshold"`
}

// Backoff configures delayed retries on transport failures
type Backoff struct {
	BaseDelay    time.Duration `koanf:"base_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	JitterFactor float64       `koanf:"jitter_factor"`
	MaxRetries   int           `koanf:"max_retries"`
}

// Detector configures loop and churn detection
type Detector struct {
	Window         int `koanf:"window"`
	ChurnThreshold int `koanf:"churn_threshold"`
}

// Runner bounds the supervisor
type Runner struct {
	MaxConcurrentLoops int `koanf:"max_concurrent_loops"`
}

// Metrics configures the observability endpoint
type Metrics struct {
	Addr string `koanf:"addr"` // empty disables the HTTP listener
}

// Log configures structured logging
type Log struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

func applyDefaults(c *Config) {
	if c.Agent.Type == "" {
		c.Agent.Type = "claude-code"
	}
	if c.Agent.Binary == "" {
		c.Agent.Binary = "claude"
	}
	if c.Agent.DecisionTimeout <= 0 {
		c.Agent.DecisionTimeout = 2 * time.Minute
	}
	if c.Agent.TaskTimeout <= 0 {
		c.Agent.TaskTimeout = 15 * time.Minute
	}
	if c.Agent.MaxTurns <= 0 {
		c.Agent.MaxTurns = 30
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.FailureWindow <= 0 {
		c.Breaker.FailureWindow = 5 * time.Minute
	}
	if c.Breaker.ResetTimeout <= 0 {
		c.Breaker.ResetTimeout = 60 * time.Second
	}
	if c.Breaker.HalfOpenSuccessThreshold <= 0 {
		c.Breaker.HalfOpenSuccessThreshold = 2
	}
	if c.Backoff.BaseDelay <= 0 {
		c.Backoff.BaseDelay = time.Second
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = 60 * time.Second
	}
	if c.Backoff.JitterFactor <= 0 {
		c.Backoff.JitterFactor = 0.25
	}
	if c.Backoff.MaxRetries <= 0 {
		c.Backoff.MaxRetries = 5
	}
	if c.Detector.Window <= 0 {
		c.Detector.Window = 6
	}
	if c.Detector.ChurnThreshold <= 0 {
		c.Detector.ChurnThreshold = 3
	}
	if c.Runner.MaxConcurrentLoops <= 0 {
		c.Runner.MaxConcurrentLoops = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	switch c.Agent.Type {
	case "claude-code", "mock":
	default:
		return fmt.Errorf("unknown agent type %q", c.Agent.Type)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Backoff.MaxDelay < c.Backoff.BaseDelay {
		return fmt.Errorf("backoff max_delay %s is below base_delay %s", c.Backoff.MaxDelay, c.Backoff.BaseDelay)
	}
	if c.Detector.Window < 3 {
		return fmt.Errorf("detector window %d is too small to ever detect a pattern", c.Detector.Window)
	}
	return nil
}
