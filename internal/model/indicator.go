package model

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"BuyTracer/internal/calendar"
)

// IndicatorRow is a bar enriched with derived indicators. Every field is
// defined: rows still inside a lookback window are never produced.
type IndicatorRow struct {
	Bar
	MA        map[int]float64 // keyed by window size
	EMAFast   float64
	EMASlow   float64
	DIF       float64
	DEM       float64
	OSC       float64
	AvgVolume float64
	// VolumeWindow is the span of AvgVolume; it names the serialized field.
	VolumeWindow int
}

// MAValue returns the moving average for the given window.
func (r IndicatorRow) MAValue(window int) (float64, bool) {
	v, ok := r.MA[window]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (r IndicatorRow) fields() map[string]any {
	m := map[string]any{
		"date":     calendar.FormatDate(r.Date),
		"open":     r.Open,
		"high":     r.High,
		"low":      r.Low,
		"close":    r.Close,
		"volume":   r.Volume,
		"turnover": r.Turnover,
		"ema_fast": round2(r.EMAFast),
		"ema_slow": round2(r.EMASlow),
		"dif":      round2(r.DIF),
		"dem":      round2(r.DEM),
		"osc":      round2(r.OSC),
	}
	if r.VolumeWindow > 0 {
		m[fmt.Sprintf("avg_volume%d", r.VolumeWindow)] = round2(r.AvgVolume)
	} else {
		m["avg_volume"] = round2(r.AvgVolume)
	}
	windows := make([]int, 0, len(r.MA))
	for w := range r.MA {
		windows = append(windows, w)
	}
	sort.Ints(windows)
	for _, w := range windows {
		m[fmt.Sprintf("ma%d", w)] = round2(r.MA[w])
	}
	return m
}

func (r IndicatorRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields())
}
