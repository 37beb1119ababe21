// File: cmd/report_test.go
package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/config"
)

// fakeStoreProvider injects a canned store into runReport.
type fakeStoreProvider struct {
	store     schemas.Store
	createErr error
	cleanedUp bool
}

func (p *fakeStoreProvider) Create(ctx context.Context, cfg *config.Config) (schemas.Store, func(), error) {
	if p.createErr != nil {
		return nil, nil, p.createErr
	}
	return p.store, func() { p.cleanedUp = true }, nil
}

func persistedTestSession() *schemas.Session {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &schemas.Session{
		ID:           "session-xyz",
		Status:       schemas.SessionCompleted,
		OverallPlan:  "the plan",
		CurrentIndex: 1,
		StartedAt:    now,
		FinishedAt:   now.Add(time.Minute),
		Units: []*schemas.Unit{
			{
				ID: "unit-1", Name: "calc", Status: schemas.UnitDone, Verified: true,
				CandidateText: "function calc() {}",
				TestResults:   []schemas.TestOutcome{{Name: "testCalc", Status: schemas.TestPassed}},
			},
		},
	}
}

func TestRunReport_RendersPersistedSession(t *testing.T) {
	session := persistedTestSession()
	provider := &fakeStoreProvider{store: &recordingStore{session: session}}
	outputPath := filepath.Join(t.TempDir(), "report.md")

	err := runReport(context.Background(), zap.NewNop(), config.NewDefaultConfig(),
		session.ID, outputPath, "markdown", provider)
	require.NoError(t, err)
	assert.True(t, provider.cleanedUp, "store cleanup must run")

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session-xyz")
	assert.Contains(t, string(data), "## Unit: calc")
}

func TestRunReport_UnknownSession(t *testing.T) {
	provider := &fakeStoreProvider{store: &recordingStore{session: persistedTestSession()}}

	err := runReport(context.Background(), zap.NewNop(), config.NewDefaultConfig(),
		"no-such-id", "", "markdown", provider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load session")
	assert.True(t, provider.cleanedUp)
}

func TestRunReport_StoreCreationFailure(t *testing.T) {
	provider := &fakeStoreProvider{createErr: errors.New("database URL is not configured")}

	err := runReport(context.Background(), zap.NewNop(), config.NewDefaultConfig(),
		"session-xyz", "", "markdown", provider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize store")
}
