package utils

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{
			name: "identical vectors",
			a:    []float32{1, 2, 3},
			b:    []float32{1, 2, 3},
			want: 1,
		},
		{
			name: "orthogonal vectors",
			a:    []float32{1, 0},
			b:    []float32{0, 1},
			want: 0,
		},
		{
			name: "opposite vectors",
			a:    []float32{1, 0},
			b:    []float32{-1, 0},
			want: -1,
		},
		{
			name: "length mismatch",
			a:    []float32{1, 2},
			b:    []float32{1, 2, 3},
			want: 0,
		},
		{
			name: "zero magnitude",
			a:    []float32{0, 0},
			b:    []float32{1, 1},
			want: 0,
		},
		{
			name: "empty vectors",
			a:    nil,
			b:    nil,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMagnitude(t *testing.T) {
	if got := Magnitude([]float32{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("Magnitude([3 4]) = %v, want 5", got)
	}
	if got := Magnitude(nil); got != 0 {
		t.Errorf("Magnitude(nil) = %v, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	t.Run("unit length result", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		if v == nil {
			t.Fatal("expected normalized vector")
		}
		if math.Abs(Magnitude(v)-1) > 1e-6 {
			t.Errorf("normalized magnitude = %v, want 1", Magnitude(v))
		}
	})

	t.Run("zero vector", func(t *testing.T) {
		if v := Normalize([]float32{0, 0}); v != nil {
			t.Errorf("expected nil for zero vector, got %v", v)
		}
	})

	t.Run("empty vector", func(t *testing.T) {
		if v := Normalize(nil); v != nil {
			t.Errorf("expected nil for empty vector, got %v", v)
		}
	})
}

func TestTopKByScore(t *testing.T) {
	items := []ScoredItem[string]{
		{Item: "low", Score: 0.1},
		{Item: "high", Score: 0.9},
		{Item: "mid-a", Score: 0.5},
		{Item: "mid-b", Score: 0.5},
		{Item: "top", Score: 0.95},
	}

	t.Run("returns top k descending", func(t *testing.T) {
		got := TopKByScore(items, 2)
		if len(got) != 2 {
			t.Fatalf("expected 2 items, got %d", len(got))
		}
		if got[0].Item != "top" || got[1].Item != "high" {
			t.Errorf("unexpected order: %v", got)
		}
	})

	t.Run("stable on ties", func(t *testing.T) {
		got := TopKByScore(items, 4)
		if got[2].Item != "mid-a" || got[3].Item != "mid-b" {
			t.Errorf("tie order not preserved: %v", got)
		}
	})

	t.Run("k larger than input", func(t *testing.T) {
		got := TopKByScore(items, 50)
		if len(got) != len(items) {
			t.Errorf("expected all %d items, got %d", len(items), len(got))
		}
	})

	t.Run("k zero", func(t *testing.T) {
		if got := TopKByScore(items, 0); got != nil {
			t.Errorf("expected nil for k=0, got %v", got)
		}
	})

	t.Run("input untouched", func(t *testing.T) {
		_ = TopKByScore(items, 3)
		if items[0].Item != "low" {
			t.Error("TopKByScore reordered its input")
		}
	})
}
