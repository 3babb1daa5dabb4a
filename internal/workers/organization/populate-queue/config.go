package populatequeue

import (
	"fmt"
	"time"

	"primary-organization/internal/common/workqueue"
)

type Config struct {
	Enabled             bool
	Timeout             time.Duration
	Approved            []string
	ExcludedIdentifiers []string
	IdentifierType      string
	ClearStatus         workqueue.Status
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Timeout:        30 * time.Second,
		IdentifierType: "cpr",
		ClearStatus:    workqueue.StatusNew,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.IdentifierType == "" {
		return fmt.Errorf("identifier_type is required")
	}
	if len(c.Approved) == 0 {
		return fmt.Errorf("at least one approved organization is required")
	}
	return nil
}
