package strategy

import (
	"testing"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"
)

type rowFields struct {
	ma5, ma20, ma60 float64
	close           float64
	volume          int64
	avgVolume       float64
	dif, dem, osc   float64
}

func makeRow(day int, s rowFields) model.IndicatorRow {
	return model.IndicatorRow{
		Bar: model.Bar{
			Date:   calendar.Date(2024, time.March, 1).AddDate(0, 0, day),
			Close:  s.close,
			Open:   s.close,
			High:   s.close,
			Low:    s.close,
			Volume: s.volume,
		},
		MA:        map[int]float64{5: s.ma5, 20: s.ma20, 60: s.ma60},
		DIF:       s.dif,
		DEM:       s.dem,
		OSC:       s.osc,
		AvgVolume: s.avgVolume,
	}
}

func TestEvaluateRules(t *testing.T) {
	tests := []struct {
		name string
		prev rowFields
		cur  rowFields
		want []model.Signal
	}{
		{
			name: "golden cross with bullish stack and volume",
			prev: rowFields{ma5: 99, ma20: 100, ma60: 90, close: 100},
			cur:  rowFields{ma5: 101, ma20: 100, ma60: 90, close: 99, volume: 2000, avgVolume: 1000},
			want: []model.Signal{model.SignalBuyTrend},
		},
		{
			name: "golden cross without volume",
			prev: rowFields{ma5: 99, ma20: 100, ma60: 90, close: 100},
			cur:  rowFields{ma5: 101, ma20: 100, ma60: 90, close: 99, volume: 500, avgVolume: 1000},
			want: nil,
		},
		{
			name: "pullback with rising histogram",
			prev: rowFields{ma5: 105, ma20: 100, ma60: 90, osc: 0.1},
			cur:  rowFields{ma5: 105, ma20: 100, ma60: 90, close: 104, dif: 1, dem: 0.5, osc: 0.5},
			want: []model.Signal{model.SignalBuyPullback},
		},
		{
			name: "death cross with bearish stack and volume",
			prev: rowFields{ma5: 101, ma20: 100, ma60: 110, close: 100},
			cur:  rowFields{ma5: 99, ma20: 100, ma60: 110, close: 101, volume: 3000, avgVolume: 1000},
			want: []model.Signal{model.SignalSellTrendReversal},
		},
		{
			name: "macd weakening below ma20",
			prev: rowFields{ma5: 95, ma20: 100, ma60: 110, osc: -0.1},
			cur:  rowFields{ma5: 95, ma20: 100, ma60: 110, close: 96, dif: -1, dem: -0.5, osc: -0.5},
			want: []model.Signal{model.SignalSellMACDWeakening},
		},
		{
			name: "pullback and death cross together",
			prev: rowFields{ma5: 101, ma20: 100, ma60: 110, osc: 0.1},
			cur:  rowFields{ma5: 99, ma20: 100, ma60: 110, close: 105, volume: 3000, avgVolume: 1000, dif: 1, dem: 0.5, osc: 0.5},
			want: []model.Signal{model.SignalBuyPullback, model.SignalSellTrendReversal},
		},
		{
			name: "golden cross and macd weakening together",
			prev: rowFields{ma5: 99, ma20: 100, ma60: 90, osc: 0.1},
			cur:  rowFields{ma5: 101, ma20: 100, ma60: 90, close: 95, volume: 2000, avgVolume: 1000, dif: -1, dem: -0.5, osc: -0.5},
			want: []model.Signal{model.SignalBuyTrend, model.SignalSellMACDWeakening},
		},
	}

	for _, tt := range tests {
		prev := makeRow(0, tt.prev)
		got := Evaluate(&prev, makeRow(1, tt.cur))
		var want model.SignalSet
		for _, s := range tt.want {
			want = want.Add(s)
		}
		if got != want {
			t.Errorf("%s: got [%s], want [%s]", tt.name, got, want)
		}
	}
}

func TestEvaluateFirstRowHasNoShiftedSignals(t *testing.T) {
	cur := makeRow(0, rowFields{ma5: 101, ma20: 100, ma60: 90, close: 105, volume: 2000, avgVolume: 1000, dif: 1, dem: 0.5, osc: 0.5})
	if got := Evaluate(nil, cur); !got.Empty() {
		t.Errorf("first row should carry no signals, got [%s]", got)
	}
}

func TestEvaluateMissingWindow(t *testing.T) {
	prev := makeRow(0, rowFields{ma5: 99, ma20: 100, ma60: 90})
	cur := makeRow(1, rowFields{ma5: 101, ma20: 100, ma60: 90, volume: 2000, avgVolume: 1000})
	delete(cur.MA, 60)
	if got := Evaluate(&prev, cur); !got.Empty() {
		t.Errorf("row without ma60 should carry no signals, got [%s]", got)
	}
}

// The trend rules contradict each other on the previous row, so force both
// conditions through the rule table and check neither masks the other.
func TestTrendRulesAreIndependent(t *testing.T) {
	saved := rules
	defer func() { rules = saved }()

	always := func(*model.IndicatorRow, model.IndicatorRow, mas) bool { return true }
	never := func(*model.IndicatorRow, model.IndicatorRow, mas) bool { return false }
	rules = []rule{
		{model.SignalBuyTrend, always},
		{model.SignalBuyPullback, never},
		{model.SignalSellTrendReversal, always},
		{model.SignalSellMACDWeakening, never},
	}

	prev := makeRow(0, rowFields{ma5: 100, ma20: 100, ma60: 100})
	got := Evaluate(&prev, makeRow(1, rowFields{ma5: 100, ma20: 100, ma60: 100}))
	if !got.Has(model.SignalBuyTrend) || !got.Has(model.SignalSellTrendReversal) {
		t.Errorf("expected both trend signals, got [%s]", got)
	}
	if !got.IsBuy() || !got.IsSell() {
		t.Error("set should be both buy and sell")
	}
}

func sampleEvents() []model.SignalEvent {
	rows := []model.IndicatorRow{
		makeRow(0, rowFields{ma5: 99, ma20: 100, ma60: 90, close: 100}),
		makeRow(1, rowFields{ma5: 101, ma20: 100, ma60: 90, close: 99, volume: 2000, avgVolume: 1000}),
		makeRow(2, rowFields{ma5: 101, ma20: 100, ma60: 90, close: 99, volume: 500, avgVolume: 1000}),
		makeRow(3, rowFields{ma5: 101, ma20: 100, ma60: 110, close: 100, volume: 500, avgVolume: 1000}),
		makeRow(4, rowFields{ma5: 99, ma20: 100, ma60: 110, close: 98, volume: 3000, avgVolume: 1000}),
	}
	return Generate(rows)
}

func TestGenerate(t *testing.T) {
	events := sampleEvents()
	if len(events) != 5 {
		t.Fatalf("expected one event per row, got %d", len(events))
	}
	if !events[1].Signals.Has(model.SignalBuyTrend) {
		t.Errorf("row 1 should be a golden cross, got [%s]", events[1].Signals)
	}
	if !events[4].Signals.Has(model.SignalSellTrendReversal) {
		t.Errorf("row 4 should be a death cross, got [%s]", events[4].Signals)
	}
	for _, i := range []int{0, 2, 3} {
		if !events[i].Signals.Empty() {
			t.Errorf("row %d should be quiet, got [%s]", i, events[i].Signals)
		}
	}
}

func TestFilterAndLatest(t *testing.T) {
	events := sampleEvents()
	if n := len(Filter(events, KindAll)); n != 2 {
		t.Errorf("all: got %d", n)
	}
	buys := Filter(events, KindBuy)
	if len(buys) != 1 || buys[0].Category() != "buy" {
		t.Errorf("buy filter: %+v", buys)
	}
	sells := Filter(events, KindSell)
	if len(sells) != 1 || sells[0].Category() != "sell" {
		t.Errorf("sell filter: %+v", sells)
	}

	latest := Latest(events, 1, KindAll)
	if len(latest) != 1 || !latest[0].Date.Equal(events[4].Date) {
		t.Errorf("latest: %+v", latest)
	}
	if n := len(Latest(events, 0, KindAll)); n != 2 {
		t.Errorf("default limit should return every signal here, got %d", n)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindAll, "ALL": KindAll, " buy ": KindBuy, "sell": KindSell} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("hold"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sampleEvents())
	if sum.TotalCount != 2 || sum.BuyCount != 1 || sum.SellCount != 1 {
		t.Errorf("unexpected counts %+v", sum)
	}
	if sum.ByCategory["buy-trend"] != 1 || sum.ByCategory["sell-trend-reversal"] != 1 {
		t.Errorf("unexpected per-category counts %v", sum.ByCategory)
	}
	if sum.Latest == nil || sum.Latest.Date != "2024-03-05" || sum.Latest.Category != "sell" || sum.Latest.MA20 != 100 {
		t.Errorf("unexpected latest %+v", sum.Latest)
	}

	empty := Summarize(nil)
	if empty.TotalCount != 0 || empty.Latest != nil {
		t.Errorf("empty summary %+v", empty)
	}
}

func TestCurrentAndStatistics(t *testing.T) {
	events := sampleEvents()
	cur := Current(events)
	if cur.HasSignal || cur.Date != "2024-03-05" {
		t.Errorf("last row is a sell, got %+v", cur)
	}
	if got := Current(events[:2]); !got.HasSignal {
		t.Errorf("golden cross day should be a current buy, got %+v", got)
	}
	if got := Current(nil); got.HasSignal || got.Date != "" {
		t.Errorf("empty series %+v", got)
	}

	st := Statistics(events)
	if st.TotalSignals != 2 || st.AvgClose != 98.5 || st.AvgVolume != 2500 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.FirstDate != "2024-03-02" || st.LastDate != "2024-03-05" {
		t.Errorf("unexpected stat dates %+v", st)
	}
}
