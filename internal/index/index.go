// Package index holds the in-memory semantic index built from extracted
// documents. The index is rebuilt from scratch on every train action and is
// never persisted or shared across sessions.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"docuchat/pkg/ai"
	"docuchat/pkg/domain"
)

var errNoDocuments = errors.New("no documents to index")

// Index is an exact nearest-neighbor structure over document embeddings.
// Lookup is brute-force cosine similarity; document order is insertion order.
type Index struct {
	dim     int
	vectors [][]float32
	docs    []domain.Document
}

// Result is one retrieved document with its similarity score.
type Result struct {
	Document domain.Document
	Score    float64
}

// Build embeds every document and constructs the index. The whole build
// fails on any embedding error; no partial index is produced.
func Build(ctx context.Context, embedder ai.Embedder, docs []domain.Document) (*Index, error) {
	if len(docs) == 0 {
		return nil, errNoDocuments
	}
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Content)
	}
	vectors, err := ai.EmbedAll(ctx, embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}
	dim := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("embedding dimension mismatch at document %d: got %d, want %d", i, len(vec), dim)
		}
	}
	return &Index{dim: dim, vectors: vectors, docs: docs}, nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.docs)
}

// Search embeds the question with the same embedder and returns the k
// nearest documents, nearest first. Ties keep insertion order.
func (ix *Index) Search(ctx context.Context, embedder ai.Embedder, question string, k int) ([]Result, error) {
	if ix == nil || len(ix.docs) == 0 {
		return nil, errNoDocuments
	}
	if k <= 0 {
		k = 4
	}
	queryVec, err := embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(queryVec) != ix.dim {
		return nil, fmt.Errorf("query embedding dimension mismatch: got %d, want %d", len(queryVec), ix.dim)
	}

	scores := make([]float64, len(ix.vectors))
	for i, vec := range ix.vectors {
		scores[i] = cosineSimilarity(queryVec, vec)
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if k > len(order) {
		k = len(order)
	}
	results := make([]Result, 0, k)
	for _, idx := range order[:k] {
		results = append(results, Result{Document: ix.docs[idx], Score: scores[idx]})
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
