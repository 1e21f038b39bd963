package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"influxpool"
	"influxpool/internal/config"
	"influxpool/internal/logging"
	"influxpool/internal/metrics"
)

var version = "0.1.0"

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:           "influxpool",
		Short:         "Pooled connections to InfluxDB",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.InfluxHost, "host", cfg.InfluxHost, "InfluxDB host")
	flags.Uint16Var(&cfg.InfluxPort, "port", cfg.InfluxPort, "InfluxDB port")
	flags.StringVar(&cfg.InfluxDatabase, "database", cfg.InfluxDatabase, "database name")
	flags.StringVar(&cfg.InfluxUsername, "username", cfg.InfluxUsername, "username, empty for no authentication")
	flags.StringVar(&cfg.InfluxPassword, "password", cfg.InfluxPassword, "password")
	flags.IntVar(&cfg.PoolMaxSize, "max-size", cfg.PoolMaxSize, "maximum number of pooled connections")
	flags.DurationVar(&cfg.PoolConnectionTimeout, "connection-timeout", cfg.PoolConnectionTimeout, "how long to wait for a usable connection")
	flags.IntVar(&cfg.PoolMaxPools, "max-pools", cfg.PoolMaxPools, "maximum number of databases served by serve at once")

	rootCmd.AddCommand(pingCmd(&cfg))
	rootCmd.AddCommand(queryCmd(&cfg))
	rootCmd.AddCommand(serveCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newManager builds the manager for the configured server. A request never
// outlives the connection timeout.
func newManager(cfg *config.Config) *influxpool.ConnectionManager {
	var manager *influxpool.ConnectionManager
	if cfg.HasAuthentication() {
		credentials := influxpool.NewCredentials(cfg.InfluxUsername, cfg.InfluxPassword)
		manager = influxpool.NewConnectionManagerWithAuthentication(cfg.InfluxHost, cfg.InfluxPort, cfg.InfluxDatabase, credentials)
	} else {
		manager = influxpool.NewConnectionManager(cfg.InfluxHost, cfg.InfluxPort, cfg.InfluxDatabase)
	}
	if cfg.PoolConnectionTimeout > 0 {
		manager = manager.WithRequestTimeout(cfg.PoolConnectionTimeout)
	}
	return manager
}

func newBuilder(cfg *config.Config, logger *slog.Logger) *influxpool.Builder[*influxpool.Client] {
	return influxpool.NewBuilder[*influxpool.Client]().
		MaxSize(cfg.PoolMaxSize).
		MinIdle(cfg.PoolMinIdle).
		ConnectionTimeout(cfg.PoolConnectionTimeout).
		IdleTimeout(cfg.PoolIdleTimeout).
		MaxLifetime(cfg.PoolMaxLifetime).
		TestOnCheckOut(cfg.PoolTestOnCheckOut).
		Logger(logger)
}

// pingCmd checks out a connection and pings the server with it
func pingCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger(cfg.Env)
			manager := newManager(cfg)
			pool, err := newBuilder(cfg, logger).Build(manager)
			if err != nil {
				return err
			}
			defer pool.Close()

			start := time.Now()
			conn, err := pool.Get(cmd.Context())
			if err != nil {
				return fmt.Errorf("ping %s: %w", manager.Address(), err)
			}
			defer conn.Release()

			if !pool.TestsOnCheckOut() {
				if err := manager.IsValid(cmd.Context(), conn.Conn()); err != nil {
					return fmt.Errorf("ping %s: %w", manager.Address(), err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is alive (%v)\n", manager.Address(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// queryCmd runs one InfluxQL statement and prints the results as JSON
func queryCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "query <influxql>",
		Short: "Run an InfluxQL query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger(cfg.Env)
			pool, err := newBuilder(cfg, logger).Build(newManager(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			conn, err := pool.Get(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Release()

			results, err := conn.Conn().Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(results)
		},
	}
}

// serveCmd exposes health, query and metrics endpoints. Every database asked
// for gets its own pool.
func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health checks, queries and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := logging.NewLogger(cfg.Env)
			manager := newManager(cfg)
			poolFacade, err := influxpool.NewPoolFacade(cfg.PoolMaxPools, newBuilder(cfg, logger))
			if err != nil {
				return err
			}
			defer poolFacade.Close()

			registry := prometheus.NewRegistry()
			registry.MustRegister(metrics.NewPoolCollector(poolFacade.StatsOfAllPools))

			server := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           NewRouter(Deps{Pools: poolFacade, Manager: manager, Registry: registry, Logger: logger}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server started", "addr", cfg.HTTPAddr, "influx", manager.Address(), "database", manager.Database())
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("http server shutting down")
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "listen address")
	return cmd
}
