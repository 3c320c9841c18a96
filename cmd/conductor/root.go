package main

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Admission and queue subsystem for coding-agent executions",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envPath := filepath.Join(configDir, ".env")
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("no %s found, continuing with existing environment variables", envPath)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONDUCTOR_CONFIG_DIR", "./deploy/config"),
		"path to the directory holding conductor.yaml and .env")

	level := slog.LevelInfo
	if os.Getenv("CONDUCTOR_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
