// Package commands implements the rolobot CLI commands using cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rolobot-ai/rolobot/pkg/rolobot/assistant"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rolobot",
		Short: "Rolobot - conversational contact memory",
		Long: `Rolobot is a conversational assistant that remembers the people you
meet: tell it about someone and it files a contact card, ask about someone
and it searches your network, and it nudges you when a contact goes quiet.

Examples:
  rolobot chat "met Anna at the fintech meetup, she does ML at Stripe"
  rolobot chat               # interactive mode
  rolobot serve              # run the recall scheduler daemon
  rolobot config init`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newServeCmd(),
		newRecallCmd(),
		newConfigCmd(),
		newSecretCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig reads .env and the yaml config, honoring the --config flag.
func loadConfig(cmd *cobra.Command) (*assistant.Config, error) {
	// A missing .env is fine; explicit env vars win either way.
	_ = godotenv.Load()

	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = "config.yaml"
	}
	return assistant.LoadConfig(path)
}

// buildLogger configures slog from config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *assistant.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
