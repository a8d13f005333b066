package cmd

import (
	"fmt"
	"os"

	"settlement-matching-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "matchd",
	Short: "Settlement matching service",
	Long: `Matchd links open accounting records (invoices and payslips) to the
ledger transactions that settled them. It scores candidate pairs across
amount, date, counterparty, description and entity signals, routes
ambiguous pairs through external verification, and either applies
high-confidence links automatically or queues suggestions for review.

Examples:
  matchd run --type invoice --auto-apply
  matchd run --type payslip --records ps-001,ps-002 --dry-run
  matchd version`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in the config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("MATCHD")
	viper.AutomaticEnv()

	configureLogging()
}

func configureLogging() {
	logConfig := logger.DefaultConfig()
	if verbose || viper.GetBool("verbose") {
		logConfig.Level = logger.DebugLevel
	} else if level := viper.GetString("log-level"); level != "" {
		logConfig.Level = logger.Level(level)
	}
	if format := viper.GetString("log-format"); format != "" {
		logConfig.Format = logger.Format(format)
	}

	if log, err := logger.NewLogger(logConfig); err == nil {
		logger.SetGlobalLogger(log)
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
