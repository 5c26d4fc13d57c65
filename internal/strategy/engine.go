// Package strategy flags buy and sell signals on indicator rows and
// aggregates them into summaries.
package strategy

import "BuyTracer/internal/model"

// Evaluate runs every rule against cur. prev is the preceding row, or nil
// for the first row of a series. Rows missing a required MA trigger nothing.
func Evaluate(prev *model.IndicatorRow, cur model.IndicatorRow) model.SignalSet {
	m, ok := readMAs(cur)
	if !ok {
		return 0
	}
	var set model.SignalSet
	for _, r := range rules {
		if r.check(prev, cur, m) {
			set = set.Add(r.signal)
		}
	}
	return set
}

// Generate annotates every row with the signals it triggers. The result has
// the same length and order as rows.
func Generate(rows []model.IndicatorRow) []model.SignalEvent {
	events := make([]model.SignalEvent, len(rows))
	for i, cur := range rows {
		var prev *model.IndicatorRow
		if i > 0 {
			prev = &rows[i-1]
		}
		events[i] = model.SignalEvent{IndicatorRow: cur, Signals: Evaluate(prev, cur)}
	}
	return events
}
