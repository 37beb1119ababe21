// File: internal/pipeline/session.go
// Description: Session construction and the small state helpers the
// orchestrator drives. All mutation happens on the orchestrator's
// goroutine; these helpers just keep the transitions in one place.

package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

// wholeInputUnitName labels the degraded single unit used when
// decomposition returns an empty partitioning.
const wholeInputUnitName = "whole_input"

func newSession() *schemas.Session {
	return &schemas.Session{
		ID:           uuid.New().String(),
		Status:       schemas.SessionIdle,
		CurrentIndex: schemas.NoCurrentUnit,
		StartedAt:    time.Now().UTC(),
	}
}

// buildUnits materializes decomposition specs into pending units. An empty
// spec list degrades to one unit covering the whole input, preserving the
// guarantee that a started session always has work to do.
func buildUnits(specs []schemas.UnitSpec, inputText string) []*schemas.Unit {
	if len(specs) == 0 {
		specs = []schemas.UnitSpec{{Name: wholeInputUnitName, SourceText: inputText}}
	}

	units := make([]*schemas.Unit, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			name = wholeInputUnitName
		}
		units = append(units, &schemas.Unit{
			ID:         uuid.New().String(),
			Name:       name,
			SourceText: spec.SourceText,
			Status:     schemas.UnitPending,
		})
	}
	return units
}

func totalSourceLines(units []*schemas.Unit) int {
	total := 0
	for _, u := range units {
		total += u.SourceLines()
	}
	return total
}

// finishSession stamps a terminal status. Err is recorded only for failed
// sessions.
func finishSession(s *schemas.Session, status schemas.SessionStatus, err error) {
	s.Status = status
	s.FinishedAt = time.Now().UTC()
	if err != nil {
		s.Err = err.Error()
	}
}
