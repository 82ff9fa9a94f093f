package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/api"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/config"
)

var version = "dev"

var (
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "kiosk",
	Short:         "Smart cart kiosk client",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `kiosk runs the checkout terminal: it streams camera frames to the
perception backend, shows detections and keeps the cart in sync.

One-shot commands talk to the backend's HTTP API for face login,
registration, checkout, purchase history and user administration.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		cfg = loaded
		logger = cfg.Log.NewLogger(os.Stderr).With("service", cfg.Service.Name)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/kiosk.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with KIOSK_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func newAPIClient() *api.HTTPClient {
	return api.NewHTTPClient(cfg.Backend.URL, cfg.Backend.HTTPTimeout, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
