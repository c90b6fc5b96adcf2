package embedder

import (
	"context"
	"fmt"

	embedeverything "github.com/soundprediction/go-embedeverything/pkg/embedder"
)

// EmbedEverythingClient implements Client over a local embed-everything
// model, for deployments that cannot send text to a hosted API.
type EmbedEverythingClient struct {
	client *embedeverything.Embedder
	config Config
}

var _ Client = (*EmbedEverythingClient)(nil)

// NewEmbedEverythingClient loads the named local embedding model.
func NewEmbedEverythingClient(config Config) (*EmbedEverythingClient, error) {
	if config.Model == "" {
		config.Model = "all-MiniLM-L6-v2"
	}
	if config.Dimensions <= 0 {
		// MiniLM family default.
		config.Dimensions = 384
	}

	client, err := embedeverything.NewEmbedder(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model %q: %w", config.Model, err)
	}
	return &EmbedEverythingClient{client: client, config: config}, nil
}

// Embed generates embeddings for the given texts.
func (e *EmbedEverythingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	// go-embedeverything does not support context yet.
	embeddings, err := e.client.Embed(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (e *EmbedEverythingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the number of dimensions in the embeddings.
func (e *EmbedEverythingClient) Dimensions() int {
	return e.config.Dimensions
}

// Close releases the loaded model.
func (e *EmbedEverythingClient) Close() error {
	e.client.Close()
	return nil
}
