// -- internal/llmclient/factory.go --
package llmclient

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/config"
)

// NewClient is a factory function that builds the tiered LLM router from
// configuration. Both tiers share one rate limiter so the combined request
// stream respects the configured throughput cap.
func NewClient(cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	fast, err := newModelClient(cfg, cfg.DefaultFastModel, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("fast tier: %w", err)
	}
	powerful, err := newModelClient(cfg, cfg.DefaultPowerfulModel, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("powerful tier: %w", err)
	}

	return NewRouter(logger, fast, powerful)
}

func newModelClient(cfg config.LLMRouterConfig, name string, limiter *rate.Limiter, logger *zap.Logger) (schemas.LLMClient, error) {
	modelCfg, ok := cfg.Models[name]
	if !ok {
		return nil, fmt.Errorf("no model configuration named %q", name)
	}

	// Using constants defined in the config package to avoid magic strings.
	switch modelCfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(modelCfg, limiter, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", modelCfg.Provider, config.ProviderGemini)
	}
}
