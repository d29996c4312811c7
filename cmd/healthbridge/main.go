package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/healthbridge/internal/config"
	"github.com/ehr/healthbridge/internal/domain/healthrecord"
	"github.com/ehr/healthbridge/internal/platform/channel"
	"github.com/ehr/healthbridge/internal/platform/db"
	"github.com/ehr/healthbridge/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "healthbridge",
		Short: "Health record bridge server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(callCmd())
	return rootCmd
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, pool, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return err
	}
	var pinger db.Pinger
	if pool != nil {
		defer pool.Close()
		pinger = pool
	}

	srv := newServer(cfg, store, pinger, logger, newRegistry())
	go srv.loop.Run(context.Background())

	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("channel", srv.router.Name()).
			Strs("methods", srv.router.Methods()).
			Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(run func(ctx context.Context, m *db.Migrator, schema string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}
			schema, _ := cmd.Flags().GetString("schema")
			if schema == "" {
				schema = cfg.DBSchema
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			return run(ctx, db.NewMigrator(pool, migrations.FS, schema), schema)
		}
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator, schema string) error {
			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		}),
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator, schema string) error {
			statuses, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("Migration status for schema: %s\n", schema)
			printStatuses(os.Stdout, statuses)
			return nil
		}),
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

var catalogKinds = []healthrecord.Kind{
	healthrecord.KindClinical,
	healthrecord.KindCharacteristic,
	healthrecord.KindCategory,
	healthrecord.KindCorrelation,
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List supported record types per kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, _ := cmd.Flags().GetString("platform")
			if platform == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				platform = cfg.PlatformVersion
			}
			version, err := healthrecord.ParsePlatformVersion(platform)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Platform %s\n", version)
			for _, kind := range catalogKinds {
				state := "available"
				if !healthrecord.KindAvailable(kind, version) {
					state = "unavailable"
				}
				fmt.Fprintf(out, "%s (%s)\n", kind, state)
				for _, id := range healthrecord.SupportedTypes(kind) {
					fmt.Fprintf(out, "  %s\n", id)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("platform", "", "Platform version (defaults to PLATFORM_VERSION)")
	return cmd
}

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [argument]",
		Short: "Invoke one channel method against the configured store",
		Long: "Invoke one channel method and print the reply envelope. The argument is\n" +
			"decoded as JSON; anything that is not valid JSON is passed as a string.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := zerolog.New(cmd.ErrOrStderr()).Level(zerolog.WarnLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ReplyTimeout)
			defer cancel()

			store, pool, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			call := channel.MethodCall{Method: args[0]}
			if len(args) == 2 {
				call.Arguments = parseArgument(args[1])
			}

			loop := channel.NewLoop(16)
			go loop.Run(ctx)
			defer loop.Stop()

			reply, err := newRouter(cfg, store, logger, nil).Call(ctx, loop, call)
			if err != nil {
				return fmt.Errorf("call %s: %w", call.Method, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(channel.NewResponse(nil, reply))
		},
	}
}

func parseArgument(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if args, err := channel.DecodeArguments([]byte(trimmed)); err == nil && trimmed != "" {
		return args
	}
	return raw
}
