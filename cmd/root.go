// The cmd package implements the interface for the pducycle CLI. The
// files in this package only handle CLI arguments and pass them to the
// functions within pducycle's internal API.
//
// Each subcommand has a corresponding internal file with the API routine
// that implements its functionality:
//
//	cmd/cycle.go   --> internal/cycle.go ( pducycle.Cycler.Run() )
//	cmd/status.go  --> internal/report.go ( pducycle.GatherReport() )
//	cmd/history.go --> internal/cache/sqlite ( History.GetCycleRecords() )
package cmd

import (
	"fmt"
	"os"

	"github.com/bikeshack/pducycle/internal/log"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The `root` command doesn't do anything on its own except display
// a help message and then exits.
var rootCmd = &cobra.Command{
	Use:   "pducycle",
	Short: "PDU-driven AC power-cycle stress tool",
	Long:  "Repeatedly power-cycles a chassis of nodes through a networked PDU,\nconfirming every port and node state transition along the way.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := log.LogLevel(viper.GetString("log-level"))
		if viper.GetBool("debug") {
			level = log.DEBUG
		}
		return log.InitWithLogLevel(level, viper.GetString("log-path"))
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			err := cmd.Help()
			if err != nil {
				zlog.Error().Err(err).Msg("failed to print help")
			}
			os.Exit(0)
		}
	},
}

// This Execute() function is called from main to run the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitializeConfig)
	rootCmd.PersistentFlags().IntP("timeout", "t", 5, "Set the timeout for management requests in seconds")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Set the config file path")
	rootCmd.PersistentFlags().Bool("debug", false, "Set to enable/disable debug messages")
	rootCmd.PersistentFlags().String("log-level", "info", "Set the logging level (debug|info|warn|error|disabled|trace)")
	rootCmd.PersistentFlags().String("log-path", "", "Set a file path to mirror log output")
	rootCmd.PersistentFlags().String("history", "/tmp/pducycle/history.db", "Set the cycle history database path")

	// bind viper config flags with cobra
	checkBindFlagError(viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout")))
	checkBindFlagError(viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")))
	checkBindFlagError(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
	checkBindFlagError(viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")))
	checkBindFlagError(viper.BindPFlag("log-path", rootCmd.PersistentFlags().Lookup("log-path")))
	checkBindFlagError(viper.BindPFlag("history", rootCmd.PersistentFlags().Lookup("history")))
}

func checkBindFlagError(err error) {
	if err != nil {
		zlog.Error().Err(err).Msg("failed to bind cobra/viper flag")
	}
}

// InitializeConfig() initializes a new config object by loading it
// from a file given a non-empty string.
func InitializeConfig() {
	viper.AutomaticEnv()
	if viper.GetString("config") != "" {
		viper.SetConfigFile(viper.GetString("config"))
	} else {
		config_dir := os.Getenv("XDG_CONFIG_HOME")
		if config_dir == "" {
			config_dir = "$HOME/.config"
		}
		viper.AddConfigPath(config_dir + "/pducycle")
		viper.SetConfigName("config")
		// File type left unspecified; Viper will auto-parse based on extension
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zlog.Error().Err(err).Msg("failed to load config")
		}
	}
}
