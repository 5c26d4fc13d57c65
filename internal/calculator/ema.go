package calculator

// EMA returns the exponential moving average of values with the given span.
// The series is seeded with the first value and has no warm-up period:
// ema[i] = v[i]*α + ema[i-1]*(1-α), α = 2/(span+1).
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// MACD computes the DIF line (fast EMA minus slow EMA), its signal line DEM
// and the OSC histogram (DIF minus DEM).
func MACD(closes []float64, fast, slow, signal int) (dif, dem, osc []float64) {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	dif = make([]float64, len(closes))
	for i := range closes {
		dif[i] = emaFast[i] - emaSlow[i]
	}
	dem = EMA(dif, signal)
	osc = make([]float64, len(closes))
	for i := range closes {
		osc[i] = dif[i] - dem[i]
	}
	return dif, dem, osc
}
