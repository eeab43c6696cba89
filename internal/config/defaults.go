package config

import "time"

// Default returns the configuration used before any flag or config file is
// parsed, mirroring gcsfuse's GetDefaultLoggingConfig-style constructors.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Severity: "INFO",
			LogRotate: LogRotateConfig{
				MaxFileSizeMb:   512,
				BackupFileCount: 10,
				Compress:        true,
			},
		},
		Scheduler: SchedulerConfig{
			MinSpare:      2,
			MaxSpare:      8,
			MaxTotal:      32,
			SlowBusyDelay: 5 * time.Second,
		},
		Conn: ConnConfig{
			Port:               12323,
			MaxOpenSockets:     64,
			IdleTimeout:        5 * time.Minute,
			ConnectViscosity:   100 * time.Millisecond,
			SlowSpeedThreshold: 1 << 20, // 1 MiB/s
		},

		Metadata: MetadataConfig{
			PathDepth:      2,
			MaxOpenHandles: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9321",
		},
	}
}
