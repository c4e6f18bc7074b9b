package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ordsys/sequencer/app"
)

// InitCmd creates the node home with a default config and genesis.
// Existing files are left alone so re-running init is safe.
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the node home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, err := cmd.Flags().GetString("chain-id")
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			if _, err := os.Stat(cfg.ConfigFile()); os.IsNotExist(err) {
				if err := cfg.WriteConfigFile(); err != nil {
					return fmt.Errorf("writing config: %w", err)
				}
				logger.Info("wrote config", "path", cfg.ConfigFile())
			}
			if _, err := os.Stat(cfg.GenesisFile()); os.IsNotExist(err) {
				gs := app.DefaultGenesis(chainID)
				if err := gs.SaveGenesis(cfg.GenesisFile()); err != nil {
					return fmt.Errorf("writing genesis: %w", err)
				}
				logger.Info("wrote genesis", "path", cfg.GenesisFile(), "chain_id", chainID)
			}
			return nil
		},
	}
	cmd.Flags().String("chain-id", "ordsys-dev", "chain id for the generated genesis")
	return cmd
}
