package config

import "time"

// DashboardConfig is the root configuration for a realtime server instance.
type DashboardConfig struct {
	Instance      InstanceConfig      `yaml:"instance"`
	Server        ServerConfig        `yaml:"server"`
	Collaborator  CollaboratorConfig  `yaml:"collaborator"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Client        ClientConfig        `yaml:"client"`
}

// InstanceConfig identifies this server.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// CollaboratorConfig holds the child query-engine process settings.
type CollaboratorConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

// SubscriptionsConfig holds poll scheduling settings.
type SubscriptionsConfig struct {
	DefaultInterval time.Duration `yaml:"default_interval"`
	MinInterval     time.Duration `yaml:"min_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
}

// ArchiveConfig holds the optional delivery-archive writer settings.
// The archive is off unless enabled explicitly.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ClientConfig holds settings for tools that consume the realtime feed.
type ClientConfig struct {
	URL                  string        `yaml:"url"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}
