package commands

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	abciserver "github.com/tendermint/tendermint/abci/server"
	tmos "github.com/tendermint/tendermint/libs/os"
	dbm "github.com/tendermint/tm-db"

	"github.com/ordsys/sequencer/app"
	"github.com/ordsys/sequencer/storage"
)

// StartCmd runs the ABCI server until interrupted. The consensus node
// connects to it over the configured transport and drives the block
// pipeline; genesis is delivered through InitChain.
func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the sequencer ABCI server",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := dbm.NewDB("state", dbm.BackendType(cfg.DBBackend), cfg.DBDir())
			if err != nil {
				return fmt.Errorf("opening state database: %w", err)
			}
			store, err := storage.NewStore(db)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}

			metrics := app.NopMetrics()
			if cfg.Prometheus {
				metrics = app.PrometheusMetrics(cfg.MetricsNamespace)
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				go func() {
					if err := http.ListenAndServe(cfg.PrometheusListenAddr, mux); err != nil {
						logger.Error("prometheus server stopped", "err", err)
					}
				}()
				logger.Info("serving metrics", "addr", cfg.PrometheusListenAddr)
			}

			application := app.New(store, logger.With("module", "app"), metrics)

			srv, err := abciserver.NewServer(cfg.ListenAddr, cfg.Transport, application)
			if err != nil {
				return fmt.Errorf("creating abci server: %w", err)
			}
			srv.SetLogger(logger.With("module", "abci-server"))
			if err := srv.Start(); err != nil {
				return fmt.Errorf("starting abci server: %w", err)
			}
			logger.Info("abci server running",
				"addr", cfg.ListenAddr,
				"transport", cfg.Transport,
				"height", store.Version(),
			)

			tmos.TrapSignal(logger, func() {
				if err := srv.Stop(); err != nil {
					logger.Error("stopping abci server", "err", err)
				}
				db.Close()
			})

			// Run forever; TrapSignal exits the process.
			select {}
		},
	}
}
