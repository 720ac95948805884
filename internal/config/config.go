package config

import "time"

// ArchiverConfig is the root configuration for an archiver instance.
type ArchiverConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Connection ConnectionConfig `yaml:"connection"`
	Database   DatabaseConfig   `yaml:"database"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this archiver.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// WorkspaceConfig addresses the real-time backend.
type WorkspaceConfig struct {
	Host        string `yaml:"host"`         // host[:port], no scheme
	WorkspaceID string `yaml:"workspace_id"` // ignored when system_feed is true
	SystemFeed  bool   `yaml:"system_feed"`
	TLS         bool   `yaml:"tls"`
}

// ConnectionConfig holds connection manager settings.
type ConnectionConfig struct {
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	LivenessMultiple   int           `yaml:"liveness_multiple"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	ReconnectFactor    float64       `yaml:"reconnect_factor"`
	ReconnectJitterMax time.Duration `yaml:"reconnect_jitter_max"`
	MaxAttempts        int           `yaml:"max_attempts"`
	HistorySize        int           `yaml:"history_size"`
	BufferSize         int           `yaml:"buffer_size"`
}

// DatabaseConfig holds the Postgres connection for the archive sink.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
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

// ArchiveConfig holds batch writer settings.
type ArchiveConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
