// Package embedder provides text embedding clients for vector
// representations of facts.
//
// The Client interface is implemented by OpenAIEmbedder (hosted or any
// OpenAI-compatible endpoint) and EmbedEverythingClient (local models).
//
// # Usage
//
//	client := embedder.NewOpenAIEmbedder(apiKey, embedder.Config{
//	    Model:     "text-embedding-3-small",
//	    BatchSize: 100,
//	})
//	vectors, err := client.Embed(ctx, []string{"Olga works for TrackRec"})
//
// Embed handles provider batch limits internally; EmbedSingle is the
// single-text convenience.
package embedder
