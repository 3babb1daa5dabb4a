package setprimaryorganization

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled     bool
	Timeout     time.Duration
	ProcessName string
	TaskLabel   string
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Timeout:     30 * time.Second,
		ProcessName: "primary-organization",
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.TaskLabel == "" {
		return fmt.Errorf("task_label is required")
	}
	return nil
}
