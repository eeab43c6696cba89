package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers zfsd's daemon flags on flagSet and binds each to its
// viper key, mirroring gcsfuse's generated cfg.BindFlags.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.Uint32P("sid", "", 0, "This node's server ID in node_list.")
	if err := viper.BindPFlag("node.sid", flagSet.Lookup("sid")); err != nil {
		return err
	}

	flagSet.StringP("name", "", "", "This node's name in node_list.")
	if err := viper.BindPFlag("node.name", flagSet.Lookup("name")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Minimum log severity (TRACE/DEBUG/INFO/WARN/ERROR).")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.IntP("min-spare", "", 2, "Minimum idle scheduler workers.")
	if err := viper.BindPFlag("scheduler.min-spare", flagSet.Lookup("min-spare")); err != nil {
		return err
	}

	flagSet.IntP("max-spare", "", 8, "Maximum idle scheduler workers before shrinking.")
	if err := viper.BindPFlag("scheduler.max-spare", flagSet.Lookup("max-spare")); err != nil {
		return err
	}

	flagSet.IntP("max-total", "", 32, "Maximum total scheduler workers.")
	if err := viper.BindPFlag("scheduler.max-total", flagSet.Lookup("max-total")); err != nil {
		return err
	}

	flagSet.DurationP("slow-busy-delay", "", 0, "ZFS_SLOW_BUSY_DELAY: how long the slow link may stay busy before the slow updater demotes.")
	if err := viper.BindPFlag("scheduler.slow-busy-delay", flagSet.Lookup("slow-busy-delay")); err != nil {
		return err
	}

	flagSet.IntP("port", "", 12323, "TCP port to listen on for peer connections.")
	if err := viper.BindPFlag("connection.port", flagSet.Lookup("port")); err != nil {
		return err
	}

	flagSet.StringP("cache-dir", "", "", "Local directory holding metadata hash files and sidecars.")
	if err := viper.BindPFlag("metadata.cache-dir", flagSet.Lookup("cache-dir")); err != nil {
		return err
	}

	flagSet.BoolP("metrics", "", true, "Expose Prometheus metrics.")
	if err := viper.BindPFlag("metrics.enabled", flagSet.Lookup("metrics")); err != nil {
		return err
	}

	flagSet.StringP("metrics-addr", "", ":9321", "Listen address for the metrics HTTP endpoint.")
	if err := viper.BindPFlag("metrics.addr", flagSet.Lookup("metrics-addr")); err != nil {
		return err
	}

	return nil
}
