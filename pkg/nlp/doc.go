// Package nlp provides the chat-completion clients behind the invalidation
// oracle.
//
// The Client interface is implemented by a base provider client and by
// wrappers that add one behavior each, so a production stack is assembled by
// stacking:
//
//	base, err := nlp.NewOpenAIClient(apiKey, nlp.Config{Model: "gpt-4o"})
//	client := nlp.NewCircuitBreakerClient(
//		nlp.NewRetryClient(base, nlp.DefaultRetryConfig(), logger),
//		cfg.CircuitBreaker, alerter, logger, "oracle",
//	)
//
// NewOpenAIClient also speaks to OpenAI-compatible services (Ollama, vLLM,
// LM Studio) through Config.BaseURL.
//
// # Error Handling
//
// RateLimitError and EmptyResponseError support errors.Is for type checks.
// RetryClient retries rate limits, timeouts, and 5xx-style failures with
// jittered exponential backoff and gives up on everything else immediately.
package nlp
