// Package config is the typed configuration layer for zfsd: a Config struct
// populated via github.com/spf13/viper + github.com/mitchellh/mapstructure
// decode hooks, bound to github.com/spf13/cobra/github.com/spf13/pflag flags
// in cmd/zfsd, mirroring gcsfuse's cfg package. It also loads the config
// volume's node/volume/user/group lists (nodelist.go, volumelist.go,
// userlist.go), the typed result the core daemon consumes once the actual
// VOLUME_ID_CONFIG bootstrap (internal/metadata) has read the raw files.
package config

import "time"

// Config is the root of the daemon's typed configuration.
type Config struct {
	Node NodeIdentity `mapstructure:"node"`

	Logging LoggingConfig `mapstructure:"logging"`

	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	Conn ConnConfig `mapstructure:"connection"`

	Metadata MetadataConfig `mapstructure:"metadata"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// NodeIdentity is this node's own entry in node_list (spec.md §1).
type NodeIdentity struct {
	SID  uint32 `mapstructure:"sid"`
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
}

type LoggingConfig struct {
	Severity string `mapstructure:"severity"`

	LogRotate LogRotateConfig `mapstructure:"log-rotate"`
}

type LogRotateConfig struct {
	MaxFileSizeMb   int  `mapstructure:"max-file-size-mb"`
	BackupFileCount int  `mapstructure:"backup-file-count"`
	Compress        bool `mapstructure:"compress"`
}

// SchedulerConfig configures internal/scheduler's regulator, spec.md §4.8.
type SchedulerConfig struct {
	MinSpare      int           `mapstructure:"min-spare"`
	MaxSpare      int           `mapstructure:"max-spare"`
	MaxTotal      int           `mapstructure:"max-total"`
	SlowBusyDelay time.Duration `mapstructure:"slow-busy-delay"`
}

// ConnConfig configures internal/conn's peer socket manager, spec.md §4.5.
type ConnConfig struct {
	Port               int           `mapstructure:"port"`
	MaxOpenSockets     int           `mapstructure:"max-open-sockets"`
	IdleTimeout        time.Duration `mapstructure:"idle-timeout"`
	ConnectViscosity   time.Duration `mapstructure:"connect-viscosity"`
	SlowSpeedThreshold float64       `mapstructure:"slow-speed-threshold-bytes-per-sec"`
}

// MetadataConfig configures internal/metadata's hash-file store, spec.md §4.3.
type MetadataConfig struct {
	CacheDir       string `mapstructure:"cache-dir"`
	PathDepth      int    `mapstructure:"path-depth"`
	MaxOpenHandles int    `mapstructure:"max-open-handles"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}
