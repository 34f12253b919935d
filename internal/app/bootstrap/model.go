package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/symptom-intake/internal/config"
	"github.com/wolfman30/symptom-intake/internal/llm"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// BuildModel wires the language model named by LLM_PROVIDER. A nil model
// means the engine runs on deterministic fallbacks only. The returned
// close func is never nil.
func BuildModel(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, observer llm.LatencyObserver, logger *logging.Logger) (triage.Model, func() error, error) {
	noop := func() error { return nil }
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	opts := []llm.AssistantOption{
		llm.WithMaxTokens(int32(cfg.ModelMaxTokens)),
		llm.WithLatencyObserver(observer),
	}

	switch cfg.LLMProvider {
	case "none", "":
		logger.Warn("no language model configured; using deterministic replies")
		return nil, noop, nil

	case "bedrock":
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			logger.Warn("bedrock selected but BEDROCK_MODEL_ID empty; using deterministic replies")
			return nil, noop, nil
		}
		var client llm.Client = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
		if fb := strings.TrimSpace(cfg.BedrockFallbackModelID); fb != "" {
			client = llm.NewFallbackClient(client, client, fb, logger)
		}
		logger.Info("bedrock model enabled", "model", model, "fallback_model", cfg.BedrockFallbackModelID)
		return llm.NewAssistant(client, model, logger, opts...), noop, nil

	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			logger.Warn("gemini selected but GEMINI_API_KEY empty; using deterministic replies")
			return nil, noop, nil
		}
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, noop, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		var client llm.Client = gemini
		if fb := strings.TrimSpace(cfg.BedrockFallbackModelID); fb != "" {
			client = llm.NewFallbackClient(gemini, llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg)), fb, logger)
		}
		logger.Info("gemini model enabled", "model", cfg.GeminiModel)
		return llm.NewAssistant(client, cfg.GeminiModel, logger, opts...), gemini.Close, nil

	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown llm provider %q", cfg.LLMProvider)
	}
}
