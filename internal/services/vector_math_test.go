package services

import (
	"math"
	"testing"
)

func TestL2NormalizeUnitLength(t *testing.T) {
	out := L2Normalize([]float32{3, 4})
	if len(out) != 2 {
		t.Fatalf("length: want=2 got=%d", len(out))
	}
	if math.Abs(float64(out[0])-0.6) > 1e-6 || math.Abs(float64(out[1])-0.8) > 1e-6 {
		t.Fatalf("normalized: want=[0.6 0.8] got=%v", out)
	}
}

func TestL2NormalizeZeroVectorUnchanged(t *testing.T) {
	in := []float32{0, 0, 0}
	out := L2Normalize(in)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("component %d: want=0 got=%v", i, v)
		}
	}
	if L2Normalize(nil) != nil {
		t.Fatalf("nil input: want=nil")
	}
}

func TestMeanPoolUniform(t *testing.T) {
	out := MeanPool([][]float32{{1, 2}, {3, 4}}, nil)
	if len(out) != 2 {
		t.Fatalf("length: want=2 got=%d", len(out))
	}
	if out[0] != 2 || out[1] != 3 {
		t.Fatalf("mean: want=[2 3] got=%v", out)
	}
}

func TestMeanPoolWeighted(t *testing.T) {
	out := MeanPool([][]float32{{0, 0}, {4, 8}}, []float64{1, 3})
	if out[0] != 3 || out[1] != 6 {
		t.Fatalf("weighted mean: want=[3 6] got=%v", out)
	}
}

func TestMeanPoolSkipsMismatchedLength(t *testing.T) {
	out := MeanPool([][]float32{{2, 4}, {1, 2, 3}}, nil)
	if out[0] != 2 || out[1] != 4 {
		t.Fatalf("mismatched vector not skipped: got=%v", out)
	}
}

func TestMeanPoolNothingContributes(t *testing.T) {
	if out := MeanPool(nil, nil); out != nil {
		t.Fatalf("empty input: want=nil got=%v", out)
	}
	if out := MeanPool([][]float32{{1, 2}}, []float64{0}); out != nil {
		t.Fatalf("zero weights: want=nil got=%v", out)
	}
}
