package calculator

import (
	"math"

	"BuyTracer/internal/model"
)

// SMA returns the trailing simple moving average of values over window.
// The first window-1 entries are NaN. A non-positive window yields all NaN.
func SMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if window <= 0 || i < window-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(window)
	}
	return out
}

func extractCloses(bars []model.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func extractVolumes(bars []model.Bar) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = float64(b.Volume)
	}
	return vols
}
