package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr                 = ":8765"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultCallTimeout          = 30 * time.Second
	DefaultMaxAttempts          = 3
	DefaultRetryBaseDelay       = 1 * time.Second
	DefaultRetryMaxDelay        = 30 * time.Second
	DefaultSubscriptionInterval = 30 * time.Second
	DefaultMinInterval          = 1 * time.Second
	DefaultPollTimeout          = 60 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultClientURL            = "ws://localhost:8765/ws"
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnects        = 10
)

func (c *DashboardConfig) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.HeartbeatInterval == 0 {
		c.Server.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Collaborator defaults
	if c.Collaborator.ConnectTimeout == 0 {
		c.Collaborator.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Collaborator.CallTimeout == 0 {
		c.Collaborator.CallTimeout = DefaultCallTimeout
	}
	if c.Collaborator.MaxAttempts == 0 {
		c.Collaborator.MaxAttempts = DefaultMaxAttempts
	}
	if c.Collaborator.RetryBaseDelay == 0 {
		c.Collaborator.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Collaborator.RetryMaxDelay == 0 {
		c.Collaborator.RetryMaxDelay = DefaultRetryMaxDelay
	}

	// Subscriptions defaults
	if c.Subscriptions.DefaultInterval == 0 {
		c.Subscriptions.DefaultInterval = DefaultSubscriptionInterval
	}
	if c.Subscriptions.MinInterval == 0 {
		c.Subscriptions.MinInterval = DefaultMinInterval
	}
	if c.Subscriptions.PollTimeout == 0 {
		c.Subscriptions.PollTimeout = DefaultPollTimeout
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Client defaults
	if c.Client.URL == "" {
		c.Client.URL = DefaultClientURL
	}
	if c.Client.ReconnectInterval == 0 {
		c.Client.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Client.MaxReconnectAttempts == 0 {
		c.Client.MaxReconnectAttempts = DefaultMaxReconnects
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
