package conf

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "driftpad.db")

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultServerPort)

	// Sync engine defaults
	v.SetDefault("sync.max_clock_skew_ms", 5*60*1000) // 5 minute skew budget
	v.SetDefault("sync.pull_default_limit", 200)
	v.SetDefault("sync.pull_max_limit", 1000)

	// Memos defaults
	v.SetDefault("memos.base_url", "")
	v.SetDefault("memos.token", "")
	v.SetDefault("memos.timeout_seconds", 30)
	v.SetDefault("memos.requests_per_second", 5.0) // polite throttle toward the remote

	// Reconciliation defaults
	v.SetDefault("reconcile.lock_timeout_ms", 2000)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.theme", "everforest")
}
