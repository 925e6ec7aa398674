package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func flags(total, spoof int) []bool {
	out := make([]bool, total)
	for i := range spoof {
		out[i] = true
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		total, spoof int
		want         Prediction
	}{
		{0, 0, PredictionUndetermined},
		{1, 0, PredictionBonafide},
		{1, 1, PredictionSpoof},
		{2, 1, PredictionSpoof},
		{10, 5, PredictionSpoof},
		{10, 4, PredictionBonafide},
		{11, 6, PredictionBonafide},
		{11, 7, PredictionSpoof},
		{20, 12, PredictionSpoof},
		{20, 11, PredictionBonafide},
	}
	for _, tt := range tests {
		got := Aggregate(flags(tt.total, tt.spoof), DefaultPolicy())
		if got.Prediction != tt.want {
			t.Errorf("Aggregate(%d/%d): want %v, got %v", tt.spoof, tt.total, tt.want, got.Prediction)
		}
		assert.Equal(t, tt.total, got.TotalWindows)
		assert.Equal(t, tt.spoof, got.SpoofCount)
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	a := Aggregate([]bool{true, false, true, false}, DefaultPolicy())
	b := Aggregate([]bool{false, false, true, true}, DefaultPolicy())
	assert.Equal(t, a, b)
}

func TestFlag(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.Flag(0.78))
	assert.True(t, p.Flag(0.99))
	assert.False(t, p.Flag(0.7799))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Record{}.Ratio())
	assert.Equal(t, 0.5, Record{SpoofCount: 5, TotalWindows: 10}.Ratio())
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.ConfidenceThreshold = 1.5
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.LargeSampleRatio = -0.1
	assert.Error(t, p.Validate())
}
