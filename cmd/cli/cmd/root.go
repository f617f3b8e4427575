package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sola-insurance/storm-sims/pkg/config"
	"github.com/sola-insurance/storm-sims/pkg/logger"
)

var (
	cfgFile   string
	projectID string
	topicName string
	logLevel  string
	noColor   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "storm-sims",
	Short: "Storm simulation fan-out CLI",
	Long: `storm-sims dispatches batches of storm simulations through a
persistent message channel and runs them effectively once, even though the
channel only guarantees at-least-once delivery. The trigger command fans a
batch out, the worker command consumes and executes the simulations, and
the ledger command inspects the idempotency records in between.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.storm-sims/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectID, "project-id", "", "Google Cloud project id (overrides PROJECT_ID)")
	rootCmd.PersistentFlags().StringVar(&topicName, "topic", "", "Pub/Sub topic for work items (overrides PUBSUB_TOPIC)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add commands
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(resendCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	logger.SetLevel(logger.ParseLevel(logLevel))
	logger.SetNoColor(noColor)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME/.storm-sims")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in
	_ = viper.ReadInConfig()
}

// loadConfig merges the config file, environment, and global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}

	if projectID != "" {
		cfg.ProjectID = projectID
	}
	if topicName != "" {
		cfg.Topic = topicName
	}
	return cfg, nil
}
