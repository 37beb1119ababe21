// File: cmd/migrate.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/collaborator"
	"github.com/xkilldash9x/chisel-cli/internal/config"
	"github.com/xkilldash9x/chisel-cli/internal/llmclient"
	"github.com/xkilldash9x/chisel-cli/internal/observability"
	"github.com/xkilldash9x/chisel-cli/internal/pipeline"
	"github.com/xkilldash9x/chisel-cli/internal/reporting"
	"github.com/xkilldash9x/chisel-cli/internal/retry"
	"github.com/xkilldash9x/chisel-cli/internal/sandbox"
	"github.com/xkilldash9x/chisel-cli/internal/store"
)

// newMigrateCmd creates and configures the `migrate` command.
func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate [input-file]",
		Short: "Migrates a legacy source file to JavaScript with generated, validated tests",
		Args:  cobra.ExactArgs(1),
		// PreRunE binds flags to their Viper keys so command-line flags
		// correctly override config file and environment values.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("pipeline.max_healing_attempts", cmd.Flags().Lookup("max-heal")); err != nil {
				return err
			}
			if err := viper.BindPFlag("pipeline.halt_on_unit_error", cmd.Flags().Lookup("halt-on-error")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-unmarshal the config now that flags are bound, so overrides
			// land with the right precedence.
			cfg := config.Get()
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}

			cfg.Migrate.InputPath = args[0]
			cfg.Migrate.Output = viper.GetString("output")
			cfg.Migrate.Format = viper.GetString("format")

			inputBytes, err := os.ReadFile(cfg.Migrate.InputPath)
			if err != nil {
				return fmt.Errorf("failed to read input file %s: %w", cfg.Migrate.InputPath, err)
			}
			if len(inputBytes) == 0 {
				return fmt.Errorf("input file %s is empty", cfg.Migrate.InputPath)
			}

			logger.Info("Starting migration",
				zap.String("input", cfg.Migrate.InputPath),
				zap.Int("max_healing_attempts", cfg.Pipeline.MaxHealingAttempts),
				zap.Bool("halt_on_unit_error", cfg.Pipeline.HaltOnUnitError),
			)

			components, err := initializeMigrateComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize migration components: %w", err)
			}
			defer components.Shutdown()

			session, err := runMigrate(ctx, cfg, logger, string(inputBytes), components)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Migration aborted gracefully")
					return fmt.Errorf("migration aborted by user signal")
				}
				return err
			}

			fmt.Printf("\nMigration Complete. Session ID: %s\n", session.ID)
			if components.Store != nil {
				fmt.Printf("To re-render the report later, run: chisel-cli report --session-id %s\n", session.ID)
			}
			return nil
		},
	}

	migrateCmd.Flags().StringP("output", "o", "", "Output file path for the report. If unset, the report is printed to stdout.")
	migrateCmd.Flags().StringP("format", "f", "markdown", "Format for the output report ('markdown' or 'json').")
	migrateCmd.Flags().Int("max-heal", 0, "Maximum healing attempts per unit. (Overrides config/env)")
	migrateCmd.Flags().Bool("halt-on-error", false, "Halt the whole session on the first unit error. (Overrides config/env)")

	return migrateCmd
}

// migrateComponents holds initialized services.
type migrateComponents struct {
	Client       schemas.LLMClient
	Collaborator schemas.TransformCollaborator
	Validator    schemas.Validator
	Policy       *retry.Policy
	Sink         *pipeline.ChannelSink
	Orchestrator *pipeline.Orchestrator
	Store        schemas.Store
	DBPool       *pgxpool.Pool
}

// Shutdown releases all held resources.
func (mc *migrateComponents) Shutdown() {
	if mc.Client != nil {
		if err := mc.Client.Close(); err != nil {
			observability.GetLogger().Warn("Error closing LLM client", zap.Error(err))
		}
	}
	if mc.DBPool != nil {
		mc.DBPool.Close()
	}
}

// initializeMigrateComponents handles dependency injection.
func initializeMigrateComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*migrateComponents, error) {
	components := &migrateComponents{}

	// 1. LLM client (fast/powerful router over the configured provider).
	client, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	components.Client = client

	// 2. Collaborator and retry policy.
	collab, err := collaborator.New(client, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize collaborator: %w", err)
	}
	components.Collaborator = collab
	components.Policy = retry.New(cfg.Pipeline.MaxRetries, cfg.Pipeline.InitialDelay, cfg.Pipeline.BackoffFactor, logger)

	// 3. Validation sandbox.
	components.Validator = sandbox.New(cfg.Sandbox, logger)

	// 4. Event stream and orchestrator.
	components.Sink = pipeline.NewChannelSink(cfg.Pipeline.EventBuffer)
	orch, err := pipeline.New(components.Collaborator, components.Validator, components.Policy, cfg.Pipeline, components.Sink, logger)
	if err != nil {
		return components, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	components.Orchestrator = orch

	// 5. Optional persistence.
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize database store: %w", err)
		}
		components.Store = dbStore
	}

	return components, nil
}

// runMigrate contains the core, testable logic for one migration run: it
// drives the pipeline while draining the event stream, then persists and
// reports the terminal session.
func runMigrate(ctx context.Context, cfg *config.Config, logger *zap.Logger, inputText string, components *migrateComponents) (*schemas.Session, error) {
	var session *schemas.Session

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer components.Sink.Close()
		var runErr error
		session, runErr = components.Orchestrator.Run(gctx, inputText)
		return runErr
	})
	g.Go(func() error {
		for ev := range components.Sink.Events() {
			logEvent(logger, ev)
		}
		return nil
	})

	runErr := g.Wait()
	if session == nil {
		return nil, runErr
	}
	if dropped := components.Sink.Dropped(); dropped > 0 {
		logger.Warn("Event buffer overflowed, some events were dropped.", zap.Int64("dropped", dropped))
	}

	// Persist and report even when the run failed; partial progress is
	// still worth keeping.
	if components.Store != nil && session.Status.Terminal() {
		persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := components.Store.PersistSession(persistCtx, session); err != nil {
			logger.Error("Failed to persist session", zap.Error(err), zap.String("session_id", session.ID))
		}
	}

	if err := writeSessionReport(logger, session, cfg.Migrate.Output, cfg.Migrate.Format); err != nil {
		logger.Error("Failed to write report", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	return session, runErr
}

// logEvent maps pipeline event severities onto log levels.
func logEvent(logger *zap.Logger, ev schemas.PipelineEvent) {
	fields := []zap.Field{
		zap.String("stage", string(ev.Stage)),
		zap.String("session_id", ev.SessionID),
	}
	if ev.UnitName != "" {
		fields = append(fields, zap.String("unit", ev.UnitName))
	}
	if ev.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", ev.Attempt))
	}
	if ev.Err != "" {
		fields = append(fields, zap.String("error", ev.Err))
	}

	switch ev.Severity {
	case schemas.SeverityError:
		logger.Error(ev.Message, fields...)
	case schemas.SeverityThinking:
		logger.Debug(ev.Message, fields...)
	default:
		logger.Info(ev.Message, fields...)
	}
}

// writeSessionReport renders the session via the reporting module.
func writeSessionReport(logger *zap.Logger, session *schemas.Session, outputPath, format string) error {
	reporter, err := reporting.New(format, outputPath)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(session); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if outputPath != "" {
		logger.Info("Report successfully written to file", zap.String("path", outputPath))
	}
	return nil
}
