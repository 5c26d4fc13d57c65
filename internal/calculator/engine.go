// Package calculator derives moving averages and MACD values from daily bars.
// Every function is pure: inputs are never modified.
package calculator

import (
	"errors"
	"fmt"
	"sort"

	"BuyTracer/internal/model"
)

// Params configures the indicator windows.
type Params struct {
	MAWindows    []int
	Fast         int
	Slow         int
	Signal       int
	VolumeWindow int
}

// DefaultParams returns MA 5/20/60, MACD 12/26/9 and a 5-day volume average.
func DefaultParams() Params {
	return Params{
		MAWindows:    []int{5, 20, 60},
		Fast:         12,
		Slow:         26,
		Signal:       9,
		VolumeWindow: 5,
	}
}

// Validate checks that every window is usable.
func (p Params) Validate() error {
	if len(p.MAWindows) == 0 {
		return errors.New("at least one MA window is required")
	}
	for _, w := range p.MAWindows {
		if w <= 0 {
			return fmt.Errorf("MA window must be positive, got %d", w)
		}
	}
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 {
		return fmt.Errorf("MACD spans must be positive, got %d/%d/%d", p.Fast, p.Slow, p.Signal)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("MACD fast span %d must be shorter than slow span %d", p.Fast, p.Slow)
	}
	if p.VolumeWindow <= 0 {
		return fmt.Errorf("volume window must be positive, got %d", p.VolumeWindow)
	}
	return nil
}

// Lookback is the longest simple-average window. EMAs need no warm-up.
func (p Params) Lookback() int {
	n := p.VolumeWindow
	for _, w := range p.MAWindows {
		if w > n {
			n = w
		}
	}
	return n
}

// CalculateAll enriches bars with every configured indicator. Rows inside
// the longest lookback window are dropped, so N bars yield N-Lookback+1 rows
// and none when N < Lookback.
func CalculateAll(bars []model.Bar, p Params) []model.IndicatorRow {
	lookback := p.Lookback()
	if lookback <= 0 || len(bars) < lookback {
		return nil
	}

	closes := extractCloses(bars)
	windows := append([]int(nil), p.MAWindows...)
	sort.Ints(windows)
	mas := make(map[int][]float64, len(windows))
	for _, w := range windows {
		mas[w] = SMA(closes, w)
	}
	emaFast := EMA(closes, p.Fast)
	emaSlow := EMA(closes, p.Slow)
	dif, dem, osc := MACD(closes, p.Fast, p.Slow, p.Signal)
	avgVol := SMA(extractVolumes(bars), p.VolumeWindow)

	rows := make([]model.IndicatorRow, 0, len(bars)-lookback+1)
	for i := lookback - 1; i < len(bars); i++ {
		ma := make(map[int]float64, len(windows))
		for _, w := range windows {
			ma[w] = mas[w][i]
		}
		rows = append(rows, model.IndicatorRow{
			Bar:       bars[i],
			MA:        ma,
			EMAFast:   emaFast[i],
			EMASlow:   emaSlow[i],
			DIF:       dif[i],
			DEM:       dem[i],
			OSC:       osc[i],
			AvgVolume: avgVol[i],

			VolumeWindow: p.VolumeWindow,
		})
	}
	return rows
}
