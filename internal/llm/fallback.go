package llm

import (
	"context"

	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// FallbackClient retries a failed primary completion on a secondary client.
// The secondary request carries fallbackModel when it is set.
type FallbackClient struct {
	primary       Client
	fallback      Client
	fallbackModel string
	logger        *logging.Logger
}

func NewFallbackClient(primary, fallback Client, fallbackModel string, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, fallbackModel: fallbackModel, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return Response{}, err
	}
	c.logger.Warn("primary model failed, attempting fallback", "error", err)

	if c.fallbackModel != "" {
		req.Model = c.fallbackModel
	}
	resp, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		c.logger.Error("fallback model also failed", "primary_error", err, "fallback_error", fbErr)
		return Response{}, fbErr
	}
	return resp, nil
}
