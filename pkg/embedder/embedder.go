package embedder

import "context"

// Client is a text embedding client. Implementations batch internally based
// on provider limits.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle embeds a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the width of the vectors this client produces.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds embedding client settings.
type Config struct {
	// Model names the embedding model.
	Model string `json:"model"`
	// BaseURL points the client at an OpenAI-compatible service.
	BaseURL string `json:"base_url,omitempty"`
	// Dimensions overrides the model's known vector width.
	Dimensions int `json:"dimensions,omitempty"`
	// BatchSize caps texts per request.
	BatchSize int `json:"batch_size,omitempty"`
}
