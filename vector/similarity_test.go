package vector

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float64
		want    float64
		wantErr error
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "dimension mismatch", a: []float64{1, 0}, b: []float64{1}, wantErr: ErrDimensionMismatch},
		{name: "empty", a: nil, b: nil, wantErr: ErrDimensionMismatch},
		{name: "zero vector", a: []float64{0, 0}, b: []float64{1, 1}, wantErr: ErrZeroVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Cosine() err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cosine() unexpected err: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimilarityToUnit(t *testing.T) {
	tests := []struct {
		cosine float64
		want   float64
	}{
		{cosine: 1, want: 1},
		{cosine: 0.42, want: 0.42},
		{cosine: 0, want: 0},
		{cosine: -0.7, want: 0},
	}
	for _, tt := range tests {
		if got := SimilarityToUnit(tt.cosine); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("SimilarityToUnit(%v) = %v, want %v", tt.cosine, got, tt.want)
		}
	}
}

func TestLocalService_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocalService().Similarity(ctx, []float64{1}, []float64{1}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
