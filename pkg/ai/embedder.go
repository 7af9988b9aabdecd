package ai

import "context"

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder optionally supports embedding multiple texts in one call.
type BatchEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts with a single batch call when the embedder supports
// it, falling back to one call per text otherwise.
func EmbedAll(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	if batch, ok := embedder.(BatchEmbedder); ok {
		return batch.EmbedTexts(ctx, texts)
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := embedder.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
