package core

import (
	"math"
	"strconv"
)

// MarginResult breaks a hypothetical close of the position down into the
// numbers the strategy and the summary report both consume.
type MarginResult struct {
	SellSize float64
	SellFee  float64
	Profit   float64
	Margin   float64
}

// CalculateMargin values the open position at sellPrice. sellPercent is the
// share of the position being sold (normally 100) and takerFee the
// fractional fee the sell would pay.
func CalculateMargin(buySize, buyFilled, buyFee, sellPercent, sellPrice, takerFee float64) MarginResult {
	sellSize := (sellPercent / 100) * (sellPrice * buyFilled)
	sellFee := sellSize * takerFee
	sellFilled := sellSize - sellFee

	profit := sellFilled - (buySize - buyFee)

	var margin float64
	if buySize > 0 {
		margin = (profit / buySize) * 100
	}

	return MarginResult{
		SellSize: sellSize,
		SellFee:  sellFee,
		Profit:   profit,
		Margin:   margin,
	}
}

// TruncateFloat floors x to n decimal places. Used everywhere a displayed
// or compared percentage must not round up past a threshold.
func TruncateFloat(x float64, n int) float64 {
	pow := math.Pow(10, float64(n))
	return math.Floor(x*pow) / pow
}

// RoundFloat rounds half away from zero to n decimal places.
func RoundFloat(x float64, n int) float64 {
	pow := math.Pow(10, float64(n))
	return math.Round(x*pow) / pow
}

// FormatFloat renders x without exponent notation and without trailing
// zeros.
func FormatFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
