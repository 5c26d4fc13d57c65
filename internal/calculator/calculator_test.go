package calculator

import (
	"math"
	"testing"
	"time"

	"BuyTracer/internal/calendar"
	"BuyTracer/internal/model"
)

const eps = 1e-9

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("%s = %.10f, want %.10f", name, got, want)
	}
}

func makeBars(closes []float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	d := calendar.Date(2024, time.January, 1)
	for i, c := range closes {
		bars[i] = model.Bar{Date: d.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: int64(1000 + i)}
	}
	return bars
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("leading entries should be NaN, got %v", got[:2])
	}
	assertClose(t, "sma[2]", got[2], 2)
	assertClose(t, "sma[3]", got[3], 3)
	assertClose(t, "sma[4]", got[4], 4)

	for _, v := range SMA([]float64{1, 2}, 0) {
		if !math.IsNaN(v) {
			t.Error("zero window should produce NaN")
		}
	}
}

func TestEMAConstantIsFixedPoint(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 42.5
	}
	for _, span := range []int{1, 5, 12, 26} {
		for i, v := range EMA(values, span) {
			if v != 42.5 {
				t.Fatalf("span %d: ema[%d] = %v, want 42.5", span, i, v)
			}
		}
	}
}

func TestEMARecurrence(t *testing.T) {
	got := EMA([]float64{10, 20, 30}, 3) // alpha 0.5
	assertClose(t, "ema[0]", got[0], 10)
	assertClose(t, "ema[1]", got[1], 15)
	assertClose(t, "ema[2]", got[2], 22.5)

	if len(EMA(nil, 3)) != 0 {
		t.Error("empty input should give empty output")
	}
}

func TestMACDZeroCross(t *testing.T) {
	var closes []float64
	for i := 0; i < 40; i++ {
		closes = append(closes, 100+float64(i))
	}
	for i := 0; i < 40; i++ {
		closes = append(closes, 139)
	}
	dif, dem, osc := MACD(closes, 12, 26, 9)

	for i := range closes {
		assertClose(t, "osc", osc[i], dif[i]-dem[i])
	}
	for i := 1; i < 40; i++ {
		if osc[i] <= 0 {
			t.Fatalf("osc[%d] = %v during the rally, want > 0", i, osc[i])
		}
	}

	cross := -1
	for i := 40; i < len(closes); i++ {
		if (dif[i-1] > dem[i-1]) != (dif[i] > dem[i]) {
			cross = i
			break
		}
	}
	if cross < 0 {
		t.Fatal("dif never crossed dem after the plateau")
	}
	if osc[cross-1] <= 0 || osc[cross] > 0 {
		t.Errorf("osc should change sign at %d: %v -> %v", cross, osc[cross-1], osc[cross])
	}
}

func TestCalculateAllTruncation(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		n    int
		want int
	}{
		{59, 0},
		{60, 1},
		{100, 41},
		{0, 0},
	}
	for _, tt := range tests {
		closes := make([]float64, tt.n)
		for i := range closes {
			closes[i] = 50 + float64(i%7)
		}
		rows := CalculateAll(makeBars(closes), p)
		if len(rows) != tt.want {
			t.Errorf("N=%d: got %d rows, want %d", tt.n, len(rows), tt.want)
		}
	}
}

func TestCalculateAllValues(t *testing.T) {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := makeBars(closes)
	rows := CalculateAll(bars, DefaultParams())
	if len(rows) != 11 {
		t.Fatalf("expected 11 rows, got %d", len(rows))
	}

	first := rows[0]
	if !first.Date.Equal(bars[59].Date) {
		t.Errorf("first row should be bar 59, got %s", calendar.FormatDate(first.Date))
	}
	// mean of 100..159 and of the trailing windows ending at 159
	assertClose(t, "ma60", first.MA[60], 129.5)
	assertClose(t, "ma20", first.MA[20], 149.5)
	assertClose(t, "ma5", first.MA[5], 157)
	assertClose(t, "avg volume", first.AvgVolume, 1057)
	if first.VolumeWindow != 5 {
		t.Errorf("volume window = %d, want 5", first.VolumeWindow)
	}

	ema := EMA(closes, 12)
	assertClose(t, "ema fast", first.EMAFast, ema[59])
	for _, r := range rows {
		for _, w := range []int{5, 20, 60} {
			if _, ok := r.MAValue(w); !ok {
				t.Fatalf("row %s missing ma%d", calendar.FormatDate(r.Date), w)
			}
		}
	}
}

func TestCalculateAllDoesNotMutateInput(t *testing.T) {
	bars := makeBars([]float64{1, 2, 3, 4, 5, 6})
	before := append([]model.Bar(nil), bars...)
	CalculateAll(bars, Params{MAWindows: []int{3}, Fast: 2, Slow: 4, Signal: 2, VolumeWindow: 2})
	for i := range bars {
		if bars[i] != before[i] {
			t.Fatalf("bar %d modified", i)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"no windows", Params{Fast: 12, Slow: 26, Signal: 9, VolumeWindow: 5}, true},
		{"negative window", Params{MAWindows: []int{-1}, Fast: 12, Slow: 26, Signal: 9, VolumeWindow: 5}, true},
		{"fast not faster", Params{MAWindows: []int{5}, Fast: 26, Slow: 12, Signal: 9, VolumeWindow: 5}, true},
		{"zero signal", Params{MAWindows: []int{5}, Fast: 12, Slow: 26, VolumeWindow: 5}, true},
		{"zero volume", Params{MAWindows: []int{5}, Fast: 12, Slow: 26, Signal: 9}, true},
	}
	for _, tt := range tests {
		err := tt.p.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
	if got := DefaultParams().Lookback(); got != 60 {
		t.Errorf("default lookback = %d, want 60", got)
	}
}
