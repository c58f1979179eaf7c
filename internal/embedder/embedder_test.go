package embedder

import (
	"context"
	"testing"
)

func TestZeroEmbedderReturnsZeroVectors(t *testing.T) {
	e := NewZeroEmbedder(8)
	vecs, err := e.Encode(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	for _, v := range vecs {
		if len(v) != 8 {
			t.Fatalf("expected dim 8, got %d", len(v))
		}
		for _, c := range v {
			if c != 0 {
				t.Fatalf("expected all-zero vector, got %v", v)
			}
		}
	}
}

func TestCosineSimilarityZeroVectorYieldsZero(t *testing.T) {
	zero := make([]float32, 8)
	other := make([]float32, 8)
	other[0] = 1
	if got := CosineSimilarity(zero, other); got != 0 {
		t.Errorf("cosine against zero vector = %v, want 0", got)
	}
}

func TestCosineSimilarityIdenticalVectorsYieldsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := CosineSimilarity(v, v); got < 0.999 {
		t.Errorf("cosine of identical vectors = %v, want ~1.0", got)
	}
}
