package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateCleanup(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.DefaultMaxParallel < 1 {
		return errors.New("queue.default_max_parallel must be at least 1")
	}
	if c.Queue.ClaimRetryAttempts < 1 {
		return errors.New("queue.claim_retry_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.Interval <= 0 {
		return errors.New("supervisor.interval must be positive")
	}
	if c.Supervisor.ProcessingTimeout <= 0 {
		return errors.New("supervisor.processing_timeout must be positive")
	}
	if c.Supervisor.MaxRetries < 0 {
		return errors.New("supervisor.max_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateCleanup() error {
	if c.Cleanup.Interval <= 0 {
		return errors.New("cleanup.interval must be positive")
	}
	if c.Cleanup.RetentionHours <= 0 {
		return errors.New("cleanup.retention_hours must be positive")
	}
	if c.Cleanup.DeadLetterAfter < 1 {
		return errors.New("cleanup.dead_letter_after must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
