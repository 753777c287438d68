package indicator

import (
	"github.com/candlebot/candlebot/pkg/core"
)

// Fibonacci retracement ratios between the series close min (ratio 1) and
// max (ratio 0), plus the upward extensions past the max.
var fibRatios = []float64{1, 0.768, 0.618, 0.5, 0.382, 0.286, 0}
var fibExtensions = []float64{0.272, 0.414, 0.618}

// FibonacciRetracementLevels returns every retracement level for the close
// series, truncated to 2 decimals, ordered ascending.
func FibonacciRetracementLevels(close core.Series[float64]) []float64 {
	min, max := minMax(close)
	diff := max - min

	// fibRatios descends, so the levels come out ascending from the close
	// min up to the max, then the extensions continue past the max.
	levels := make([]float64, 0, len(fibRatios)+len(fibExtensions))
	for _, r := range fibRatios {
		levels = append(levels, core.TruncateFloat(max-r*diff, 2))
	}
	for _, r := range fibExtensions {
		levels = append(levels, core.TruncateFloat(max+r*diff, 2))
	}
	return levels
}

// FibonacciBand returns the retracement levels immediately below and above
// price. Low is zero when price sits below every level, high is zero when
// it sits above every level.
func FibonacciBand(close core.Series[float64], price float64) (low, high float64) {
	levels := FibonacciRetracementLevels(close)

	for _, level := range levels {
		if level < price {
			low = level
			continue
		}
		high = level
		break
	}
	return low, high
}

func minMax(values core.Series[float64]) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
