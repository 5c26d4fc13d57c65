package strategy

import "BuyTracer/internal/model"

// Moving-average windows the rules read from each row.
const (
	ShortWindow = 5
	MidWindow   = 20
	LongWindow  = 60
)

// RequiredWindows lists the MA windows every row must carry.
var RequiredWindows = []int{ShortWindow, MidWindow, LongWindow}

// rule decides whether one signal fires on cur given the row before it.
// prev is nil on the first row of a series.
type rule struct {
	signal model.Signal
	check  func(prev *model.IndicatorRow, cur model.IndicatorRow, m mas) bool
}

// rules are evaluated independently; a row may trigger any combination.
var rules = []rule{
	{model.SignalBuyTrend, buyTrend},
	{model.SignalBuyPullback, buyPullback},
	{model.SignalSellTrendReversal, sellTrendReversal},
	{model.SignalSellMACDWeakening, sellMACDWeakening},
}

type mas struct {
	short, mid, long float64
}

func readMAs(r model.IndicatorRow) (mas, bool) {
	s, ok1 := r.MAValue(ShortWindow)
	m, ok2 := r.MAValue(MidWindow)
	l, ok3 := r.MAValue(LongWindow)
	return mas{s, m, l}, ok1 && ok2 && ok3
}

func volumeSurge(r model.IndicatorRow) bool {
	return float64(r.Volume) > r.AvgVolume
}

// buyTrend: golden cross of ma5 over ma20 into a bullish stack on heavy volume.
func buyTrend(prev *model.IndicatorRow, cur model.IndicatorRow, m mas) bool {
	if prev == nil {
		return false
	}
	p, ok := readMAs(*prev)
	if !ok {
		return false
	}
	return p.short < p.mid &&
		m.short > m.mid &&
		m.mid > m.long &&
		volumeSurge(cur)
}

// buyPullback: MACD above its signal line with a rising histogram, price above ma20.
func buyPullback(prev *model.IndicatorRow, cur model.IndicatorRow, m mas) bool {
	if prev == nil {
		return false
	}
	return cur.DIF > cur.DEM &&
		cur.OSC > prev.OSC &&
		cur.Close > m.mid
}

// sellTrendReversal: death cross of ma5 under ma20 into a bearish stack on heavy volume.
func sellTrendReversal(prev *model.IndicatorRow, cur model.IndicatorRow, m mas) bool {
	if prev == nil {
		return false
	}
	p, ok := readMAs(*prev)
	if !ok {
		return false
	}
	return p.short > p.mid &&
		m.short < m.mid &&
		m.mid < m.long &&
		volumeSurge(cur)
}

// sellMACDWeakening: MACD below its signal line with a falling histogram, price below ma20.
func sellMACDWeakening(prev *model.IndicatorRow, cur model.IndicatorRow, m mas) bool {
	if prev == nil {
		return false
	}
	return cur.DIF < cur.DEM &&
		cur.OSC < prev.OSC &&
		cur.Close < m.mid
}
