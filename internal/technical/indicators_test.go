package technical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.InDelta(t, 8.0, CalculateSMA(closes, 5), 1e-9)
	assert.InDelta(t, 5.5, CalculateSMA(closes, 10), 1e-9)
	assert.Zero(t, CalculateSMA(closes, 11), "too little history")
	assert.Zero(t, CalculateSMA(closes, 0))
}

func TestCalculateStdDev(t *testing.T) {
	flat := []float64{5, 5, 5, 5, 5}
	assert.Zero(t, CalculateStdDev(flat, 5))

	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, CalculateStdDev(closes, 8), 1e-9)
}

func TestCalculateRSI(t *testing.T) {
	short := []float64{100, 101, 102}
	assert.InDelta(t, 50.0, CalculateRSI(short, 14), 1e-9, "insufficient history is neutral")

	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	assert.InDelta(t, 100.0, CalculateRSI(rising, 14), 1e-9, "all gains")

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 130 - float64(i)
	}
	assert.InDelta(t, 0.0, CalculateRSI(falling, 14), 1e-9, "all losses")

	// Equal gains and losses balance out to 50.
	alternating := make([]float64, 31)
	for i := range alternating {
		alternating[i] = 100 + float64(i%2)
	}
	assert.InDelta(t, 50.0, CalculateRSI(alternating, 14), 1.0)
}

func TestCalculateBollinger(t *testing.T) {
	alternating := make([]float64, 20)
	for i := range alternating {
		alternating[i] = 100 + float64(i%2) // mean 100.5, stddev 0.5
	}

	upper, middle, lower := CalculateBollinger(alternating, 20)
	assert.InDelta(t, 101.5, upper, 1e-9)
	assert.InDelta(t, 100.5, middle, 1e-9)
	assert.InDelta(t, 99.5, lower, 1e-9)

	upper, middle, lower = CalculateBollinger([]float64{1, 2}, 20)
	assert.Zero(t, upper)
	assert.Zero(t, middle)
	assert.Zero(t, lower)
}

func TestCalculateWeeklyVolatility(t *testing.T) {
	assert.Zero(t, CalculateWeeklyVolatility([]float64{100}))
	assert.Zero(t, CalculateWeeklyVolatility([]float64{100, 100, 100}), "flat series has no volatility")

	swinging := make([]float64, 40)
	for i := range swinging {
		if i%2 == 0 {
			swinging[i] = 100
		} else {
			swinging[i] = 110
		}
	}
	vol := CalculateWeeklyVolatility(swinging)
	assert.Greater(t, vol, 0.0)
	// Daily stddev is ~ln(1.1); the weekly figure scales by sqrt(5).
	assert.InDelta(t, math.Log(1.1)*math.Sqrt(5), vol, 0.02)
}

func TestNormInv(t *testing.T) {
	assert.InDelta(t, 0.0, NormInv(0.5), 1e-9)
	assert.InDelta(t, 1.2816, NormInv(0.90), 1e-3)
	assert.InDelta(t, -1.2816, NormInv(0.10), 1e-3)
	assert.InDelta(t, 1.6449, NormInv(0.95), 1e-3)
	assert.InDelta(t, 2.3263, NormInv(0.99), 1e-3)

	assert.True(t, math.IsInf(NormInv(0), -1))
	assert.True(t, math.IsInf(NormInv(1), 1))

	// Symmetry across the distribution tails.
	for _, p := range []float64{0.01, 0.05, 0.2, 0.4} {
		assert.InDelta(t, -NormInv(1-p), NormInv(p), 1e-6)
	}
}
