package tesseract

import "testing"

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{50, 0.5},
		{25, 0.25},
		{100, 1},
		{120, 1},
	}

	for _, tt := range tests {
		if got := normalizeConfidence(tt.in); got != tt.want {
			t.Errorf("normalizeConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
