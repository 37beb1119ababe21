// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/config"
	"github.com/xkilldash9x/chisel-cli/internal/observability"
	"github.com/xkilldash9x/chisel-cli/internal/store"
)

// storeProvider defines an interface for components that can create a data
// store. This abstraction allows tests to inject a mock store instead of a
// live database connection.
type storeProvider interface {
	// Create initializes and returns a schemas.Store, a cleanup function to
	// release resources, and an error if the creation fails.
	Create(ctx context.Context, cfg *config.Config) (schemas.Store, func(), error)
}

// defaultStoreProvider is the concrete implementation used in production.
type defaultStoreProvider struct{}

// NewStoreProvider creates the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to PostgreSQL using the provided configuration and
// returns the store along with a cleanup function that closes the pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (schemas.Store, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (CHISEL_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed (via report cleanup).")
	}
	return storeService, cleanup, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var sessionID string
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Re-render the report for a persisted migration session",
		Long: `Loads a previously persisted migration session from the database by ID
and renders it in the requested format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()

			// Delegate to the testable core logic function.
			return runReport(ctx, logger, cfg, sessionID, outputPath, format, provider)
		},
	}

	reportCmd.Flags().StringVar(&sessionID, "session-id", "", "The ID of the session to render (required)")
	_ = reportCmd.MarkFlagRequired("session-id")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", "markdown", "Format for the output report ('markdown' or 'json').")

	return reportCmd
}

// runReport contains the core, testable logic for rendering a persisted
// session.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	sessionID, outputPath, format string,
	provider storeProvider,
) error {
	logger.Info("Rendering persisted session", zap.String("session_id", sessionID))

	storeService, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	session, err := storeService.GetSession(ctx, sessionID)
	if err != nil {
		logger.Error("Failed to load session", zap.Error(err), zap.String("session_id", sessionID))
		return fmt.Errorf("failed to load session: %w", err)
	}

	return writeSessionReport(logger, session, outputPath, format)
}
