package indicator

import "github.com/markcheno/go-talib"

// Thin wrappers over go-talib for the indicators the points-based strategy
// uses. The pandas-equivalent column math in engine.go stays hand-rolled
// because its warm-up and seeding semantics differ from talib's.

// MaType represents a moving average type.
type MaType = talib.MaType

const (
	TypeSMA = talib.SMA
	TypeEMA = talib.EMA
	TypeWMA = talib.WMA
)

// SMA calculates the Simple Moving Average.
func SMA(input []float64, period int) []float64 {
	return talib.Sma(input, period)
}

// EMA calculates the Exponential Moving Average.
func EMA(input []float64, period int) []float64 {
	return talib.Ema(input, period)
}

// WMA calculates the Weighted Moving Average.
func WMA(input []float64, period int) []float64 {
	return talib.Wma(input, period)
}

// MA calculates a moving average of the given type.
func MA(input []float64, period int, maType MaType) []float64 {
	return talib.Ma(input, period, maType)
}

// RSI calculates the Relative Strength Index.
func RSI(input []float64, period int) []float64 {
	return talib.Rsi(input, period)
}

// ADX calculates the Average Directional Movement Index.
func ADX(high, low, close []float64, period int) []float64 {
	return talib.Adx(high, low, close, period)
}

// PlusDI calculates the Plus Directional Indicator.
func PlusDI(high, low, close []float64, period int) []float64 {
	return talib.PlusDI(high, low, close, period)
}

// MinusDI calculates the Minus Directional Indicator.
func MinusDI(high, low, close []float64, period int) []float64 {
	return talib.MinusDI(high, low, close, period)
}

// OBV calculates On-Balance Volume.
func OBV(input []float64, volume []float64) []float64 {
	return talib.Obv(input, volume)
}

// MACD calculates Moving Average Convergence/Divergence.
// Returns macd, signal and histogram.
func MACD(input []float64, fastPeriod, slowPeriod, signalPeriod int) ([]float64, []float64, []float64) {
	return talib.Macd(input, fastPeriod, slowPeriod, signalPeriod)
}

// StdDev calculates the rolling standard deviation.
func StdDev(input []float64, period int, nbDev float64) []float64 {
	return talib.StdDev(input, period, nbDev)
}
