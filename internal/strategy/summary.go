package strategy

import (
	"fmt"
	"strings"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"
)

// Kind selects which signal-bearing rows to keep.
type Kind string

const (
	KindAll  Kind = "all"
	KindBuy  Kind = "buy"
	KindSell Kind = "sell"
)

// DefaultLatestLimit is how many recent signals Latest returns when limit <= 0.
const DefaultLatestLimit = 5

// ParseKind accepts all, buy or sell (case-insensitive); empty means all.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAll, nil
	case KindAll, KindBuy, KindSell:
		return k, nil
	}
	return "", fmt.Errorf("unknown signal kind %q", s)
}

func (k Kind) matches(s model.SignalSet) bool {
	switch k {
	case KindBuy:
		return s.IsBuy()
	case KindSell:
		return s.IsSell()
	}
	return !s.Empty()
}

// Filter keeps rows carrying at least one signal of the requested kind.
func Filter(events []model.SignalEvent, kind Kind) []model.SignalEvent {
	var out []model.SignalEvent
	for _, e := range events {
		if kind.matches(e.Signals) {
			out = append(out, e)
		}
	}
	return out
}

// Latest returns up to limit of the most recent matching rows, oldest first.
func Latest(events []model.SignalEvent, limit int, kind Kind) []model.SignalEvent {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	matched := Filter(events, kind)
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// Summarize counts signal-bearing rows and reports the most recent one.
func Summarize(events []model.SignalEvent) model.SignalSummary {
	sum := model.SignalSummary{ByCategory: make(map[string]int)}
	var last *model.SignalEvent
	for i := range events {
		e := &events[i]
		if e.Signals.Empty() {
			continue
		}
		sum.TotalCount++
		if e.Signals.IsBuy() {
			sum.BuyCount++
		}
		if e.Signals.IsSell() {
			sum.SellCount++
		}
		for _, sig := range e.Signals.Categories() {
			sum.ByCategory[sig.String()]++
		}
		last = e
	}
	if last != nil {
		ma20, _ := last.MAValue(MidWindow)
		sum.Latest = &model.LatestSignal{
			Date:     calendar.FormatDate(last.Date),
			Signals:  last.Signals,
			Category: last.Category(),
			Close:    last.Close,
			MA20:     ma20,
		}
	}
	return sum
}

// Current reports whether the most recent row carries a buy signal.
func Current(events []model.SignalEvent) model.CurrentSignal {
	if len(events) == 0 {
		return model.CurrentSignal{}
	}
	last := events[len(events)-1]
	return model.CurrentSignal{
		HasSignal: last.Signals.IsBuy(),
		Signals:   last.Signals,
		Date:      calendar.FormatDate(last.Date),
		Close:     last.Close,
	}
}

// Statistics describes the signal-bearing rows.
func Statistics(events []model.SignalEvent) model.SignalStats {
	hits := Filter(events, KindAll)
	if len(hits) == 0 {
		return model.SignalStats{}
	}
	var closeSum float64
	var volSum int64
	for _, e := range hits {
		closeSum += e.Close
		volSum += e.Volume
	}
	n := len(hits)
	return model.SignalStats{
		TotalSignals: n,
		AvgClose:     closeSum / float64(n),
		AvgVolume:    volSum / int64(n),
		FirstDate:    calendar.FormatDate(hits[0].Date),
		LastDate:     calendar.FormatDate(hits[n-1].Date),
	}
}
