package indicator

import (
	"math"
	"testing"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// SMA(3) for [10,11,12,13,14,15]:
	// [0] = (10+11+12)/3 = 11
	// [1] = (11+12+13)/3 = 12
	// [2] = (12+13+14)/3 = 13
	// [3] = (13+14+15)/3 = 14

	expected := []float64{11, 12, 13, 14}

	if len(sma) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(sma))
	}

	for i, v := range expected {
		if sma[i] != v {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], v)
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	sma := SMA(prices, 5)

	if len(sma) != 0 {
		t.Errorf("expected empty slice, got %d values", len(sma))
	}
}

func TestEMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}
	ema := EMA(prices, 3)

	if len(ema) != 4 {
		t.Fatalf("expected 4 values, got %d", len(ema))
	}

	// First EMA = SMA = 11
	if ema[0] != 11 {
		t.Errorf("first EMA should equal SMA, got %f", ema[0])
	}

	// Subsequent EMAs should trend upward
	for i := 1; i < len(ema); i++ {
		if ema[i] <= ema[i-1] {
			t.Errorf("EMA should be increasing, ema[%d]=%f <= ema[%d]=%f", i, ema[i], i-1, ema[i-1])
		}
	}
}

func TestEMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	ema := EMA(prices, 5)

	if len(ema) != 0 {
		t.Errorf("expected empty slice, got %d values", len(ema))
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestStdDev(t *testing.T) {
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !almostEqual(got, 2, 1e-9) {
		t.Errorf("expected stddev 2, got %f", got)
	}
	if StdDev(nil) != 0 {
		t.Error("expected 0 for empty input")
	}
}

func TestBollinger(t *testing.T) {
	prices := []float64{10, 10, 10, 12, 14, 16}
	b := Bollinger(prices, 3, 2)

	if len(b.Middle) != 4 || len(b.Upper) != 4 || len(b.Lower) != 4 {
		t.Fatalf("unexpected lengths: %d/%d/%d", len(b.Upper), len(b.Middle), len(b.Lower))
	}
	// flat window has zero width
	if b.Upper[0] != 10 || b.Lower[0] != 10 {
		t.Errorf("flat window should collapse bands, got %f/%f", b.Upper[0], b.Lower[0])
	}
	for i := range b.Middle {
		if b.Upper[i] < b.Middle[i] || b.Lower[i] > b.Middle[i] {
			t.Errorf("band order violated at %d", i)
		}
	}
}

func TestLogReturns(t *testing.T) {
	r := LogReturns([]float64{100, 110, 0, 121})
	if len(r) != 3 {
		t.Fatalf("expected 3 returns, got %d", len(r))
	}
	if !almostEqual(r[0], math.Log(1.1), 1e-12) {
		t.Errorf("unexpected first return %f", r[0])
	}
	if r[1] != 0 || r[2] != 0 {
		t.Error("zero prices should produce zero returns")
	}
}

func TestROC(t *testing.T) {
	r := ROC([]float64{100, 101, 102, 110}, 3)
	if len(r) != 1 || !almostEqual(r[0], 10, 1e-9) {
		t.Errorf("expected [10], got %v", r)
	}
	if len(ROC([]float64{1, 2}, 5)) != 0 {
		t.Error("expected empty ROC for short series")
	}
}

func TestLast(t *testing.T) {
	if Last(nil) != 0 {
		t.Error("expected 0 for empty series")
	}
	if Last([]float64{1, math.NaN()}) != 0 {
		t.Error("expected 0 for NaN tail")
	}
	if Last([]float64{1, 2, 3}) != 3 {
		t.Error("expected last value")
	}
}
