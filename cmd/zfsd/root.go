// Command zfsd is the daemon entrypoint: it binds flags and a config file
// through internal/config, brings up logging, metrics and the scheduler,
// mounts one volume through internal/core and internal/fuseadapter, and
// blocks until the mount is unmounted, mirroring gcsfuse/cmd/root.go's
// cobra.Command + cobra.OnInitialize wiring collapsed to this daemon's
// single Config struct.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zlomekfs/zfsd/internal/config"
)

var cfgFile string
var background bool

var rootCmd = &cobra.Command{
	Use:           "zfsd [flags] mount_point",
	Short:         "zfsd mounts a zlomekFS volume over FUSE",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		mountPoint := args[0]

		handedOff, err := daemonizeIfRequested()
		if err != nil {
			return err
		}
		if handedOff {
			return nil
		}

		cfg := config.Default()
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("zfsd: parsing config: %w", err)
		}
		if err := config.Validate(&cfg); err != nil {
			return fmt.Errorf("zfsd: invalid config: %w", err)
		}

		err = run(cmd.Context(), mountPoint, cfg, signalMountOutcome)
		return err
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	rootCmd.Flags().BoolVar(&background, "background", false, "Fork to the background once mounted, per jacobsa/daemonize.")
	if err := config.BindFlags(rootCmd.Flags()); err != nil {
		panic(fmt.Errorf("zfsd: binding flags: %w", err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "zfsd: reading config file %q: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}
