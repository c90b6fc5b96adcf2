package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/reconcile/pkg/alert"
	"github.com/soundprediction/reconcile/pkg/config"
	"github.com/soundprediction/reconcile/pkg/types"
)

// CircuitBreakerClient wraps a Client with a circuit breaker so a failing
// judgment backend stops receiving traffic instead of stalling every worker.
// Opening the breaker raises an alert.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

var _ Client = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps client with circuit breaking. When the
// breaker is disabled in config the original client is returned unchanged.
func NewCircuitBreakerClient(client Client, cfg config.CircuitBreakerConfig, alerter alert.Alerter, logger *slog.Logger, name string) Client {
	if !cfg.Enabled {
		return client
	}
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen && alerter != nil {
				msg := fmt.Sprintf("Circuit breaker %q moved from %s to %s after repeated failures.", name, from, to)
				if err := alerter.Alert(fmt.Sprintf("Circuit breaker tripped: %s", name), msg); err != nil {
					logger.Error("failed to send circuit breaker alert", "error", err)
				}
			}
		},
	}

	return &CircuitBreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// Chat implements Client.
func (c *CircuitBreakerClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	resp, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.Chat(ctx, messages)
	})
	if err != nil {
		return nil, err
	}
	return resp.(*types.Response), nil
}

// Close implements Client.
func (c *CircuitBreakerClient) Close() error {
	return c.client.Close()
}
