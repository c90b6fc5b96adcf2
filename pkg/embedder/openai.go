package embedder

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/soundprediction/reconcile/pkg/utils"
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultBatchSize      = 100
	defaultDimensions     = 1536
)

// modelDimensions maps known OpenAI embedding models to their vector width.
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// OpenAIEmbedder implements Client against the OpenAI embeddings API or any
// compatible service via Config.BaseURL.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
}

var _ Client = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedding client. Missing config fields fall
// back to text-embedding-3-small and its dimensions.
func NewOpenAIEmbedder(apiKey string, config Config) *OpenAIEmbedder {
	if config.Model == "" {
		config.Model = defaultEmbeddingModel
	}
	if config.Dimensions <= 0 {
		if dims, ok := modelDimensions[config.Model]; ok {
			config.Dimensions = dims
		} else {
			config.Dimensions = defaultDimensions
		}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	var client *openai.Client
	if config.BaseURL != "" {
		clientConfig := openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = config.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(apiKey)
	}

	return &OpenAIEmbedder{client: client, config: config}
}

// Embed embeds the given texts, batching requests to the provider limit.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range utils.Batch(texts, e.config.BatchSize) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: batch,
			Model: openai.EmbeddingModel(e.config.Model),
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d vectors for %d texts",
				len(resp.Data), len(batch))
		}
		for _, item := range resp.Data {
			out = append(out, item.Embedding)
		}
	}
	return out, nil
}

// EmbedSingle embeds a single text.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the vector width for the configured model.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close is a no-op; the underlying HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
