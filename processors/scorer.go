package processors

import (
	"context"
	"math"
)

// Embedder is the external text-embedding collaborator. An empty vector
// means "no signal", never an error the core has to handle.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoreSimilarity computes the cosine similarity between two texts via the
// embedding collaborator. Empty input, a failed or empty embedding, or a
// zero-norm vector all score 0.0 without propagating an error. The result
// is not clamped; callers treat values <= 0 as non-matches.
func ScoreSimilarity(ctx context.Context, textA, textB string, embedder Embedder) float64 {
	if textA == "" || textB == "" {
		return 0.0
	}

	va, err := embedder.Embed(ctx, textA)
	if err != nil || len(va) == 0 {
		return 0.0
	}
	vb, err := embedder.Embed(ctx, textB)
	if err != nil || len(vb) == 0 {
		return 0.0
	}

	return cosine(va, vb)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0.0
	}
	return dot / denom
}
