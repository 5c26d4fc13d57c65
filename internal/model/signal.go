package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Signal is one rule-based signal category. Values are bit flags.
type Signal uint8

const (
	SignalBuyTrend Signal = 1 << iota
	SignalBuyPullback
	SignalSellTrendReversal
	SignalSellMACDWeakening
)

// AllSignals lists every category in display order.
var AllSignals = []Signal{SignalBuyTrend, SignalBuyPullback, SignalSellTrendReversal, SignalSellMACDWeakening}

var signalNames = map[Signal]string{
	SignalBuyTrend:          "buy-trend",
	SignalBuyPullback:       "buy-pullback",
	SignalSellTrendReversal: "sell-trend-reversal",
	SignalSellMACDWeakening: "sell-macd-weakening",
}

var signalLabels = map[Signal]string{
	SignalBuyTrend:          "🚀 Trend confirmed buy",
	SignalBuyPullback:       "✨ Pullback support buy",
	SignalSellTrendReversal: "⬇️ Trend reversal sell",
	SignalSellMACDWeakening: "🔶 MACD weakening sell",
}

func (s Signal) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return fmt.Sprintf("signal(%d)", uint8(s))
}

// Label is the human-readable name used in reports.
func (s Signal) Label() string { return signalLabels[s] }

// IsBuy reports whether s is a buy category.
func (s Signal) IsBuy() bool { return s == SignalBuyTrend || s == SignalBuyPullback }

// ParseSignal resolves a category name.
func ParseSignal(name string) (Signal, error) {
	for s, n := range signalNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

// SignalSet holds any combination of categories for one day.
type SignalSet uint8

const (
	buyMask  = SignalSet(SignalBuyTrend | SignalBuyPullback)
	sellMask = SignalSet(SignalSellTrendReversal | SignalSellMACDWeakening)
)

func (s SignalSet) Has(sig Signal) bool      { return s&SignalSet(sig) != 0 }
func (s SignalSet) Add(sig Signal) SignalSet { return s | SignalSet(sig) }
func (s SignalSet) Empty() bool              { return s == 0 }
func (s SignalSet) IsBuy() bool              { return s&buyMask != 0 }
func (s SignalSet) IsSell() bool             { return s&sellMask != 0 }

// Categories returns the contained signals in display order.
func (s SignalSet) Categories() []Signal {
	var out []Signal
	for _, sig := range AllSignals {
		if s.Has(sig) {
			out = append(out, sig)
		}
	}
	return out
}

func (s SignalSet) String() string {
	cats := s.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}

func (s SignalSet) MarshalJSON() ([]byte, error) {
	names := []string{}
	for _, c := range s.Categories() {
		names = append(names, c.String())
	}
	return json.Marshal(names)
}

func (s *SignalSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set SignalSet
	for _, n := range names {
		sig, err := ParseSignal(n)
		if err != nil {
			return err
		}
		set = set.Add(sig)
	}
	*s = set
	return nil
}

// SignalEvent is an indicator row together with the signals it triggered.
type SignalEvent struct {
	IndicatorRow
	Signals SignalSet
}

func (e SignalEvent) MarshalJSON() ([]byte, error) {
	m := e.IndicatorRow.fields()
	m["signals"] = e.Signals
	m["category"] = e.Category()
	return json.Marshal(m)
}

// Category is "buy" when any buy signal fired, "sell" for sell-only days and "" otherwise.
func (e SignalEvent) Category() string {
	switch {
	case e.Signals.IsBuy():
		return "buy"
	case e.Signals.IsSell():
		return "sell"
	}
	return ""
}

// LatestSignal is the most recent signal-bearing day.
type LatestSignal struct {
	Date     string    `json:"date"`
	Signals  SignalSet `json:"signals"`
	Category string    `json:"category"`
	Close    float64   `json:"close"`
	MA20     float64   `json:"ma20"`
}

// SignalSummary aggregates signal counts over a series.
type SignalSummary struct {
	TotalCount int            `json:"total_count"`
	BuyCount   int            `json:"buy_total_count"`
	SellCount  int            `json:"sell_total_count"`
	ByCategory map[string]int `json:"by_category"`
	Latest     *LatestSignal  `json:"latest_signal"`
}

// SignalStats holds descriptive statistics over signal-bearing days.
type SignalStats struct {
	TotalSignals int     `json:"total_signals"`
	AvgClose     float64 `json:"avg_close"`
	AvgVolume    int64   `json:"avg_volume"`
	FirstDate    string  `json:"first_date,omitempty"`
	LastDate     string  `json:"last_date,omitempty"`
}

// CurrentSignal tells whether the latest session carries a buy signal.
type CurrentSignal struct {
	HasSignal bool      `json:"has_signal"`
	Signals   SignalSet `json:"signals"`
	Date      string    `json:"date"`
	Close     float64   `json:"close,omitempty"`
}
