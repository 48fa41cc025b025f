package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fleet-mds-provider/internal/config"
	"fleet-mds-provider/internal/freshness"
	"fleet-mds-provider/internal/identity"
	"fleet-mds-provider/internal/infrastructure/database/postgres"
	"fleet-mds-provider/internal/logger"
	"fleet-mds-provider/internal/materializer"
	"fleet-mds-provider/internal/observability"
	"fleet-mds-provider/internal/refresh"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "materializer",
		Short: "Hourly materialization engine for the MDS provider API",
		Long: `Rebuilds hour buckets of trips, events, and vehicle snapshots from the
raw fleet warehouse. Run one hour with --hour, or listen for triggers from
the external scheduler with listen.`,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(listenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and wires a materializer against the database.
func setup() (*config.Config, *postgres.DB, *materializer.Materializer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	env := cfg.Server.Environment
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	clock := clockwork.NewRealClock()
	mat := materializer.New(
		postgres.NewWarehouseRepository(db),
		postgres.NewMaterializedRepository(db, clock),
		identity.NewDeriver(cfg.Provider.ID),
		clock,
		logger.Named("materializer"),
		observability.NewMetrics(),
		materializer.Options{
			SnapshotLookback:    cfg.Data.SnapshotLookback,
			CommsLossGap:        cfg.Data.CommsLossGap,
			MinLocationAccuracy: cfg.Data.MinLocationAccuracy,
		},
	)
	return cfg, db, mat, nil
}

// runCmd materializes a single hour and exits.
func runCmd() *cobra.Command {
	var hourParam string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Materialize a single hour bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			hour, err := freshness.ParseHour(hourParam)
			if err != nil {
				return fmt.Errorf("invalid --hour: %w", err)
			}

			cfg, db, mat, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Refresh.RunTimeout)
			defer cancel()

			res, err := mat.MaterializeHour(ctx, hour)
			if err != nil {
				return err
			}

			fmt.Printf("Materialized %s: %d trips, %d events, %d snapshots (%d attempt(s), %v)\n",
				hour, res.TripsWritten, res.EventsWritten, res.SnapshotsWritten, res.Attempts, res.Duration)
			return nil
		},
	}

	cmd.Flags().StringVar(&hourParam, "hour", "", "Hour bucket to materialize (YYYY-MM-DDTHH, UTC)")
	cmd.MarkFlagRequired("hour")
	return cmd
}

// listenCmd subscribes to the scheduler topic and materializes on demand.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Listen for refresh triggers from the external scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, mat, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()
			defer logger.Sync()

			if cfg.Refresh.Broker == "" {
				return fmt.Errorf("REFRESH_MQTT_BROKER is not configured")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			trigger := refresh.NewTrigger(mat, &cfg.Refresh, logger.Named("refresh"))
			if err := trigger.Start(ctx); err != nil {
				return fmt.Errorf("failed to start refresh listener: %w", err)
			}
			defer trigger.Stop()

			logger.Info("Refresh listener started",
				zap.String("broker", cfg.Refresh.Broker),
				zap.String("topic", cfg.Refresh.Topic),
			)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			logger.Info("Shutting down refresh listener")
			return nil
		},
	}
}
