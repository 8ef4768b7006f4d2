package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/neeraj2004kumar2006-pixel/earn4sub/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "earn4sub",
	Short: "Reward-task wallet API",
	Long: `earn4sub serves the wallet side of the reward-task platform: proof submissions,
their review and auto-approval, the wallet ledger and withdrawals.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the config and installs the JSON logger at the configured level.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
