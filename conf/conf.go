// Package conf holds the driftpad runtime configuration: TOML files merged
// with environment variables through Viper, with sane defaults for every key.
package conf

// Config represents the core driftpad configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Memos     MemosConfig     `mapstructure:"memos"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the driftpad HTTP server
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SyncConfig configures the push/pull engine
type SyncConfig struct {
	// MaxClockSkewMs bounds how far a client-claimed timestamp may run
	// ahead of server time before it is clamped
	MaxClockSkewMs int64 `mapstructure:"max_clock_skew_ms"`

	// PullDefaultLimit is used when a pull request omits limit
	PullDefaultLimit int `mapstructure:"pull_default_limit"`

	// PullMaxLimit caps the limit a client may request
	PullMaxLimit int `mapstructure:"pull_max_limit"`
}

// MemosConfig configures the external Memos note store
type MemosConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	Token             string  `mapstructure:"token"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ReconcileConfig configures the external reconciliation job
type ReconcileConfig struct {
	// LockTimeoutMs is how long a run waits for the per-user lock before
	// failing fast with a retryable conflict
	LockTimeoutMs int64 `mapstructure:"lock_timeout_ms"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	JSON  bool   `mapstructure:"json"`
	Theme string `mapstructure:"theme"` // gruvbox, everforest
}

// DefaultServerPort is the port served when config omits one.
const DefaultServerPort = 8742
