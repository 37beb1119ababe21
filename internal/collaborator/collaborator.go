// File: internal/collaborator/collaborator.go
// Description: LLM-backed implementation of the TransformCollaborator
// interface. Each method is one remote generation plus response parsing;
// malformed payloads are classified fatal because resending the identical
// prompt is unlikely to fix a structurally broken answer.

package collaborator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/llmutil"
)

// Compile-time check that Collaborator fulfills the interface.
var _ schemas.TransformCollaborator = (*Collaborator)(nil)

// Collaborator performs the generative steps of a migration against an
// LLMClient. Plan-aware prompts reuse the analysis produced earlier in the
// same session.
type Collaborator struct {
	client schemas.LLMClient
	logger *zap.Logger

	mu   sync.RWMutex
	plan string
}

// New constructs a Collaborator. The client must not be nil.
func New(client schemas.LLMClient, logger *zap.Logger) (*Collaborator, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collaborator{
		client: client,
		logger: logger.Named("collaborator"),
	}, nil
}

// Analyze produces a whole-input migration plan. The plan is retained so
// later prompts in the session can reference it.
func (c *Collaborator) Analyze(ctx context.Context, inputText string) (string, error) {
	resp, err := c.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: analyzeSystemPrompt,
		UserPrompt:   buildAnalyzePrompt(inputText),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature: 0.3,
		},
	})
	if err != nil {
		return "", fmt.Errorf("analyze generation failed: %w", err)
	}

	plan := strings.TrimSpace(resp)
	c.mu.Lock()
	c.plan = plan
	c.mu.Unlock()

	c.logger.Info("Analysis completed.", zap.Int("plan_length", len(plan)))
	return plan, nil
}

// Decompose partitions the input into an ordered list of named units.
func (c *Collaborator) Decompose(ctx context.Context, inputText string) ([]schemas.UnitSpec, error) {
	resp, err := c.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: decomposeSystemPrompt,
		UserPrompt:   buildDecomposePrompt(inputText, c.currentPlan()),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.1,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decompose generation failed: %w", err)
	}

	specs, err := llmutil.ParseJSONResponse[[]schemas.UnitSpec](resp)
	if err != nil {
		c.logger.Error("Failed to parse decomposition response.", zap.Error(err))
		return nil, schemas.NewFatalBackendError("decompose",
			fmt.Errorf("malformed decomposition payload: %w", err))
	}

	c.logger.Info("Decomposition completed.", zap.Int("unit_count", len(*specs)))
	return *specs, nil
}

// Transform produces the target-language candidate plus metadata for one
// unit.
func (c *Collaborator) Transform(ctx context.Context, unit *schemas.Unit) (*schemas.TransformResult, error) {
	resp, err := c.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: transformSystemPrompt,
		UserPrompt:   buildTransformPrompt(unit, c.currentPlan()),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("transform generation failed for unit %s: %w", unit.Name, err)
	}

	result, err := llmutil.ParseJSONResponse[schemas.TransformResult](resp)
	if err != nil {
		c.logger.Error("Failed to parse transform response.",
			zap.String("unit", unit.Name), zap.Error(err))
		return nil, schemas.NewFatalBackendError("transform",
			fmt.Errorf("malformed transform payload for unit %s: %w", unit.Name, err))
	}
	result.CandidateText = llmutil.CleanCodeOutput(result.CandidateText)
	if strings.TrimSpace(result.CandidateText) == "" {
		return nil, schemas.NewFatalBackendError("transform",
			fmt.Errorf("transform produced empty candidate for unit %s", unit.Name))
	}
	return result, nil
}

// GenerateTests produces a test script for a candidate. Runs on the fast
// tier; test scripts are structurally simpler than translations.
func (c *Collaborator) GenerateTests(ctx context.Context, candidateText, sourceText string) (string, error) {
	resp, err := c.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: generateTestsSystemPrompt,
		UserPrompt:   buildGenerateTestsPrompt(sourceText, candidateText),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature: 0.2,
		},
	})
	if err != nil {
		return "", fmt.Errorf("test generation failed: %w", err)
	}

	script := llmutil.CleanCodeOutput(resp)
	if strings.TrimSpace(script) == "" {
		return "", schemas.NewFatalBackendError("generate_tests",
			fmt.Errorf("test generation produced an empty script"))
	}
	return script, nil
}

// Heal proposes a revised candidate from the failing outcomes of the last
// validation run.
func (c *Collaborator) Heal(ctx context.Context, unit *schemas.Unit, candidateText, testScript string, failures []schemas.TestOutcome) (string, error) {
	resp, err := c.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: healSystemPrompt,
		UserPrompt:   buildHealPrompt(unit, candidateText, testScript, failures),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature: 0.2,
		},
	})
	if err != nil {
		return "", fmt.Errorf("heal generation failed for unit %s: %w", unit.Name, err)
	}

	revised := llmutil.CleanCodeOutput(resp)
	if strings.TrimSpace(revised) == "" {
		return "", schemas.NewFatalBackendError("heal",
			fmt.Errorf("heal produced an empty candidate for unit %s", unit.Name))
	}
	return revised, nil
}

func (c *Collaborator) currentPlan() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.plan == "" {
		return "(no plan available)"
	}
	return c.plan
}
