package indicator

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
)

// RSI calculates the Relative Strength Index. Returns an empty slice when
// there are fewer than period+1 prices.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return []float64{}
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsi.Compute(helper.SliceToChan(prices)))
}

// ATR calculates the Average True Range over high/low/close series of equal length.
func ATR(high, low, closes []float64, period int) []float64 {
	n := len(closes)
	if period <= 0 || n < period+1 || len(high) != n || len(low) != n {
		return []float64{}
	}
	atr := volatility.NewAtrWithPeriod[float64](period)
	out := atr.Compute(
		helper.SliceToChan(high),
		helper.SliceToChan(low),
		helper.SliceToChan(closes),
	)
	return helper.ChanToSlice(out)
}

// MACDResult holds the MACD line and its signal line, tail-aligned.
type MACDResult struct {
	MACD   []float64
	Signal []float64
}

// MACD calculates the 12/26/9 MACD. Needs at least 35 prices.
func MACD(prices []float64) MACDResult {
	if len(prices) < 35 {
		return MACDResult{MACD: []float64{}, Signal: []float64{}}
	}

	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(prices))

	// both channels must be drained concurrently or Compute blocks
	done := make(chan []float64)
	go func() {
		done <- helper.ChanToSlice(signalChan)
	}()
	line := helper.ChanToSlice(macdChan)
	signal := <-done

	n := min(len(line), len(signal))
	return MACDResult{
		MACD:   line[len(line)-n:],
		Signal: signal[len(signal)-n:],
	}
}

// StochasticResult holds %K and %D, tail-aligned.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic calculates the 14/3 stochastic oscillator. Windows with no
// price range read 50.
func Stochastic(high, low, closes []float64) StochasticResult {
	so := momentum.NewStochasticOscillator[float64]()
	n := len(closes)
	if n < so.IdlePeriod()+1 || len(high) != n || len(low) != n {
		return StochasticResult{K: []float64{}, D: []float64{}}
	}

	kChan, dChan := so.Compute(
		helper.SliceToChan(high),
		helper.SliceToChan(low),
		helper.SliceToChan(closes),
	)
	done := make(chan []float64)
	go func() {
		done <- helper.ChanToSlice(dChan)
	}()
	k := helper.ChanToSlice(kChan)
	d := <-done

	m := min(len(k), len(d))
	res := StochasticResult{K: k[len(k)-m:], D: d[len(d)-m:]}
	for i := range m {
		res.K[i] = finiteOr(res.K[i], 50)
		res.D[i] = finiteOr(res.D[i], 50)
	}
	return res
}

// ADXResult holds the Average Directional Index and the +DI/-DI lines, tail-aligned.
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX calculates Wilder's Average Directional Index. Needs at least
// 2*period+1 bars.
func ADX(high, low, closes []float64, period int) ADXResult {
	n := len(closes)
	if period <= 0 || n < 2*period+1 || len(high) != n || len(low) != n {
		return ADXResult{ADX: []float64{}, PlusDI: []float64{}, MinusDI: []float64{}}
	}

	plusDM := make([]float64, n-1)
	minusDM := make([]float64, n-1)
	tr := make([]float64, n-1)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
		tr[i-1] = max(high[i]-low[i], math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1]))
	}

	sTR := rma(tr, period)
	sPlus := rma(plusDM, period)
	sMinus := rma(minusDM, period)

	plusDI := make([]float64, len(sTR))
	minusDI := make([]float64, len(sTR))
	dx := make([]float64, len(sTR))
	for i := range sTR {
		if sTR[i] > 0 {
			plusDI[i] = 100 * sPlus[i] / sTR[i]
			minusDI[i] = 100 * sMinus[i] / sTR[i]
		}
		if sum := plusDI[i] + minusDI[i]; sum > 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}

	adx := rma(dx, period)
	m := len(adx)
	return ADXResult{
		ADX:     adx,
		PlusDI:  plusDI[len(plusDI)-m:],
		MinusDI: minusDI[len(minusDI)-m:],
	}
}

// rma applies Wilder's smoothing; the first value is the SMA of the first period values.
func rma(values []float64, period int) []float64 {
	if len(values) < period {
		return []float64{}
	}
	r := trend.NewRmaWithPeriod[float64](period)
	return helper.ChanToSlice(r.Compute(helper.SliceToChan(values)))
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
