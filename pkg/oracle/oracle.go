package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundprediction/reconcile/pkg/nlp"
)

// Oracle answers the invalidation question for a pair of fact summaries. The
// response is free-form text; callers coerce it into a boolean with
// CoerceDecision. Implementations must be safe for concurrent use.
type Oracle interface {
	// Judge reports whether the secondary fact supersedes the primary fact.
	Judge(ctx context.Context, primary, secondary Summary) (string, error)
}

// LLMOracle implements Oracle over a chat-completion client. Transport
// resilience lives in the client stack (nlp.RetryClient, circuit breaker);
// this type only owns the prompt.
type LLMOracle struct {
	client nlp.Client
	logger *slog.Logger
}

var _ Oracle = (*LLMOracle)(nil)

// NewLLMOracle creates an oracle backed by the given chat client.
func NewLLMOracle(client nlp.Client, logger *slog.Logger) *LLMOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMOracle{client: client, logger: logger}
}

// Judge asks the model whether secondary invalidates primary and returns its
// raw answer. An empty answer is returned as-is; coercion treats it as "no".
func (o *LLMOracle) Judge(ctx context.Context, primary, secondary Summary) (string, error) {
	resp, err := o.client.Chat(ctx, judgmentMessages(primary, secondary))
	if err != nil {
		return "", fmt.Errorf("invalidation judgment for facts %d/%d: %w", primary.FactID, secondary.FactID, err)
	}
	o.logger.Debug("oracle judgment received",
		"primary", primary.FactID, "secondary", secondary.FactID,
		"response_len", len(resp.Content))
	return resp.Content, nil
}
