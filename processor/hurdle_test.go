package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHurdle(t *testing.T) {
	tests := []struct {
		name      string
		voteDiff  int
		remaining float64
		want      float64
	}{
		{"even split needed when tied", 0, 10000, 0.5},
		{"trailing needs more than half", 1000, 10000, 0.55},
		{"needs every remaining vote", 10000, 10000, 1.0},
		{"deficit exceeds remaining", 20000, 10000, 1.5},
		{"no votes remaining", 500, 0, 0},
		{"negative remaining clamps to zero", 500, -250, 0},
		{"fractional remaining", 90, 180, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Hurdle(tt.voteDiff, tt.remaining), 1e-9)
		})
	}
}

func TestHurdleFormula(t *testing.T) {
	// (diff + remaining) / (2 * remaining)
	got := Hurdle(4000, 36000)
	assert.InDelta(t, 40000.0/72000.0, got, 1e-12)
}
