package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stratadb-labs/strata-core/pkg/log"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the database and serve /metrics, /health, /ready, /live until signaled",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.WithComponent("stratadb")

		db, err := openDB(cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		collector := metrics.NewCollector(db)
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("wal", true, "open")
		metrics.RegisterComponent("mvcc", true, "open")
		metrics.RegisterComponent("snapshot", true, "recovered")

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		logger.Info().Str("addr", metricsAddr).Msg("serving metrics")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		_ = server.Close()
		if err := db.Checkpoint(); err != nil {
			logger.Debug().Err(err).Msg("skipping final checkpoint")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
}
