package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *DashboardConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Collaborator.Command == "" {
		return errors.New("collaborator.command is required")
	}
	if c.Collaborator.MaxAttempts < 1 {
		return errors.New("collaborator.max_attempts must be >= 1")
	}
	if c.Collaborator.RetryBaseDelay <= 0 {
		return errors.New("collaborator.retry_base_delay must be positive")
	}
	if c.Collaborator.RetryMaxDelay < c.Collaborator.RetryBaseDelay {
		return fmt.Errorf("collaborator.retry_max_delay (%s) cannot be below retry_base_delay (%s)",
			c.Collaborator.RetryMaxDelay, c.Collaborator.RetryBaseDelay)
	}

	if c.Subscriptions.MinInterval <= 0 {
		return errors.New("subscriptions.min_interval must be positive")
	}
	if c.Subscriptions.DefaultInterval < c.Subscriptions.MinInterval {
		return fmt.Errorf("subscriptions.default_interval (%s) cannot be below min_interval (%s)",
			c.Subscriptions.DefaultInterval, c.Subscriptions.MinInterval)
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Client.MaxReconnectAttempts < 1 {
		return errors.New("client.max_reconnect_attempts must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
