package indicator

import "math"

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average
func EMA(prices []float64, period int) []float64 {
	if len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	// Start with SMA as first EMA value
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	// Calculate EMA for remaining prices
	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Bands holds Bollinger band series aligned with SMA(prices, period).
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger calculates Bollinger Bands with k standard deviations.
func Bollinger(prices []float64, period int, k float64) Bands {
	middle := SMA(prices, period)
	bands := Bands{
		Upper:  make([]float64, len(middle)),
		Middle: middle,
		Lower:  make([]float64, len(middle)),
	}
	for i, m := range middle {
		sd := StdDev(prices[i : i+period])
		bands.Upper[i] = m + k*sd
		bands.Lower[i] = m - k*sd
	}
	return bands
}

// LogReturns returns ln(p[i]/p[i-1]); non-positive prices yield 0.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i] > 0 && prices[i-1] > 0 {
			out[i-1] = math.Log(prices[i] / prices[i-1])
		}
	}
	return out
}

// ROC calculates Rate of Change in percent over period bars.
func ROC(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) <= period {
		return []float64{}
	}
	out := make([]float64, 0, len(prices)-period)
	for i := period; i < len(prices); i++ {
		prev := prices[i-period]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prev)/prev*100)
	}
	return out
}

// Last returns the final value of a series, 0 when empty or NaN.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
