package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/ordsys/sequencer/config"
)

var (
	cfg    = config.DefaultConfig()
	logger = log.NewTMLogger(log.NewSyncWriter(os.Stderr))
)

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sequencerd"
	}
	return filepath.Join(home, ".sequencerd")
}

// RootCmd builds the sequencerd command tree.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequencerd",
		Short: "orderbook sequencer ABCI application",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := cmd.Flags().GetString("home")
			if err != nil {
				return err
			}
			loaded, err := config.Load(home)
			if err != nil {
				return err
			}
			if err := loaded.ValidateBasic(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = loaded

			out := log.NewSyncWriter(os.Stderr)
			if cfg.LogFormat == "json" {
				logger = log.NewTMJSONLogger(out)
			} else {
				logger = log.NewTMLogger(out)
			}
			opt, err := log.AllowLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
			}
			logger = log.NewFilter(logger, opt)
			return nil
		},
	}
	cmd.PersistentFlags().String("home", defaultHome(), "node home directory")
	cmd.AddCommand(
		InitCmd(),
		StartCmd(),
		VersionCmd(),
	)
	return cmd
}
