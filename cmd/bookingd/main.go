package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"table-booking-backend/config"
	"table-booking-backend/internal/logging"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
}

// load reads the configuration and builds the logger.
func (o *rootOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", o.configPath, err)
	}
	log, err := logging.New(cfg.Log, nil)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("path", o.configPath).Info("configuration loaded")
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}
	return cfg, log, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}

	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Restaurant table reservation and occupancy service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultPath, "path to the YAML config file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	return cmd
}

func main() {
	// Secrets usually live in .env during local development.
	_ = godotenv.Load(".env")

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bookingd:", err)
		os.Exit(1)
	}
}
