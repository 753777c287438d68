// Package metric computes the statistics the simulation summary prints:
// bootstrap confidence intervals over per-trade margins.
package metric

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// BootstrapInterval is a confidence interval estimated by resampling.
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	StdDev float64
	Mean   float64
}

// Bootstrap resamples values with replacement sampleSize times, applies
// measure to each resample and returns the confidence interval of the
// resulting distribution (confidence in (0,1), e.g. 0.95).
func Bootstrap(values []float64, measure func([]float64) float64, sampleSize int, confidence float64) BootstrapInterval {
	if len(values) == 0 {
		return BootstrapInterval{}
	}

	data := make([]float64, 0, sampleSize)
	for i := 0; i < sampleSize; i++ {
		sample := make([]float64, len(values))
		for j := range sample {
			sample[j] = lo.Sample(values)
		}
		data = append(data, measure(sample))
	}

	tail := 1 - confidence
	sort.Float64s(data)

	mean, stdDev := stat.MeanStdDev(data, nil)
	return BootstrapInterval{
		Lower:  stat.Quantile(tail/2, stat.LinInterp, data, nil),
		Upper:  stat.Quantile(1-tail/2, stat.LinInterp, data, nil),
		StdDev: stdDev,
		Mean:   mean,
	}
}

// Mean is the measure normally fed to Bootstrap for trade margins.
func Mean(values []float64) float64 {
	return stat.Mean(values, nil)
}
