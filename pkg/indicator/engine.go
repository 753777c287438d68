package indicator

import (
	"fmt"
	"math"

	"github.com/candlebot/candlebot/pkg/core"
)

// The engine decorates a Dataframe with the indicator columns the strategy
// consumes. Every Add function is pure over the OHLCV prefix: row i depends
// only on rows 0..i. Column names match the tracker CSV format.

// AddAll computes the full battery in dependency order. Columns that need
// SMA200 fall back to neutral values when the frame is shorter than 200
// rows (the simulator's ramp-up phase).
func AddAll(df *core.Dataframe) error {
	AddChangePct(df)
	AddCMA(df)

	for _, p := range []int{20, 50} {
		if err := AddSMA(df, p); err != nil {
			return err
		}
	}
	for _, p := range []int{12, 26} {
		if err := AddEMA(df, p); err != nil {
			return err
		}
	}

	if df.Len() >= 200 {
		if err := AddSMA(df, 200); err != nil {
			return err
		}
		AddGoldenCross(df)
		AddDeathCross(df)
	} else {
		neutralTrue := make([]bool, df.Len())
		for i := range neutralTrue {
			neutralTrue[i] = true
		}
		df.Flags["goldencross"] = neutralTrue
		df.Flags["deathcross"] = make([]bool, df.Len())
	}

	AddFibonacciBollingerBands(df, 20, 3)

	if err := AddRSI(df, 14); err != nil {
		return err
	}
	if err := AddMACD(df); err != nil {
		return err
	}
	AddOBV(df)
	if err := AddElderRay(df); err != nil {
		return err
	}

	AddEMASignals(df)
	AddSMASignals(df)
	AddMACDSignals(df)

	AddCandlePatterns(df)

	return nil
}

func validatePeriod(n, period, min, max int) error {
	if period < min || period > max {
		return fmt.Errorf("period %d: %w", period, core.ErrPeriodOutOfRange)
	}
	if n < period {
		return fmt.Errorf("%d rows for period %d: %w", n, period, core.ErrSeriesTooShort)
	}
	return nil
}

// AddSMA appends smaN: the rolling mean of close with a minimum window of
// one observation.
func AddSMA(df *core.Dataframe, period int) error {
	if err := validatePeriod(df.Len(), period, 5, 200); err != nil {
		return err
	}
	df.Metadata[fmt.Sprintf("sma%d", period)] = rollingMean(df.Close, period)
	return nil
}

// AddEMA appends emaN: the recursive EMA with smoothing 2/(period+1),
// seeded at the first close.
func AddEMA(df *core.Dataframe, period int) error {
	if err := validatePeriod(df.Len(), period, 5, 200); err != nil {
		return err
	}
	df.Metadata[fmt.Sprintf("ema%d", period)] = ewmSpan(df.Close, period)
	return nil
}

// AddMACD appends macd = ema12 - ema26 and signal = EMA9 of macd.
func AddMACD(df *core.Dataframe) error {
	if df.Len() < 26 {
		return fmt.Errorf("macd needs 26 rows: %w", core.ErrSeriesTooShort)
	}
	for _, p := range []int{12, 26} {
		if _, ok := df.Metadata[fmt.Sprintf("ema%d", p)]; !ok {
			if err := AddEMA(df, p); err != nil {
				return err
			}
		}
	}

	ema12 := df.Metadata["ema12"]
	ema26 := df.Metadata["ema26"]
	macd := make(core.Series[float64], df.Len())
	for i := range macd {
		macd[i] = ema12[i] - ema26[i]
	}

	df.Metadata["macd"] = macd
	df.Metadata["signal"] = ewmSpan(macd, 9)
	return nil
}

// AddRSI appends rsiN, Wilder-style with pandas ewm weighting and a
// neutral 50 prefix before the warm-up completes.
func AddRSI(df *core.Dataframe, period int) error {
	if err := validatePeriod(df.Len(), period, 7, 21); err != nil {
		return err
	}

	n := df.Len()
	out := make(core.Series[float64], n)
	alpha := 1.0 / float64(period)

	// ewm with adjust=true over the diff series: keep running weighted
	// numerator and denominator instead of the recursive form.
	var gainNum, lossNum, den float64
	for i := 1; i < n; i++ {
		diff := df.Close[i] - df.Close[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else if diff < 0 {
			loss = diff
		}

		gainNum = gain + (1-alpha)*gainNum
		lossNum = loss + (1-alpha)*lossNum
		den = 1 + (1-alpha)*den

		if i < period {
			out[i] = 50
			continue
		}

		avgGain := gainNum / den
		avgLoss := lossNum / den
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = 50
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := math.Abs(avgGain / avgLoss)
			out[i] = 100 - 100/(1+rs)
		}
	}
	out[0] = 50

	df.Metadata[fmt.Sprintf("rsi%d", period)] = out
	return nil
}

// AddOBV appends obv (cumulative signed volume, seeded with the first
// row's volume) and obv_pc (its percent change, rounded to 2).
func AddOBV(df *core.Dataframe) {
	n := df.Len()
	obv := make(core.Series[float64], n)
	obvPC := make(core.Series[float64], n)
	if n == 0 {
		df.Metadata["obv"] = obv
		df.Metadata["obv_pc"] = obvPC
		return
	}

	obv[0] = df.Volume[0]
	for i := 1; i < n; i++ {
		switch {
		case df.Close[i] > df.Close[i-1]:
			obv[i] = obv[i-1] + df.Volume[i]
		case df.Close[i] < df.Close[i-1]:
			obv[i] = obv[i-1] - df.Volume[i]
		default:
			obv[i] = obv[i-1]
		}

		if obv[i-1] != 0 {
			obvPC[i] = core.RoundFloat((obv[i]-obv[i-1])/obv[i-1]*100, 2)
		}
	}

	df.Metadata["obv"] = obv
	df.Metadata["obv_pc"] = obvPC
}

// AddChangePct appends close_pc (percent change of close) and close_cpc
// (cumulative product of 1+close_pc).
func AddChangePct(df *core.Dataframe) {
	n := df.Len()
	pc := make(core.Series[float64], n)
	cpc := make(core.Series[float64], n)

	acc := 1.0
	for i := 0; i < n; i++ {
		if i > 0 && df.Close[i-1] != 0 {
			pc[i] = df.Close[i]/df.Close[i-1] - 1
		}
		acc *= 1 + pc[i]
		cpc[i] = acc
	}

	df.Metadata["close_pc"] = pc
	df.Metadata["close_cpc"] = cpc
}

// AddCMA appends cma, the expanding mean of close.
func AddCMA(df *core.Dataframe) {
	n := df.Len()
	out := make(core.Series[float64], n)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += df.Close[i]
		out[i] = sum / float64(i+1)
	}
	df.Metadata["cma"] = out
}

// AddGoldenCross appends goldencross: SMA50 above SMA200.
func AddGoldenCross(df *core.Dataframe) {
	sma50, sma200 := df.Column("sma50"), df.Column("sma200")
	out := make([]bool, df.Len())
	for i := range out {
		out[i] = sma50[i] > sma200[i]
	}
	df.Flags["goldencross"] = out
}

// AddDeathCross appends deathcross: SMA50 below SMA200.
func AddDeathCross(df *core.Dataframe) {
	sma50, sma200 := df.Column("sma50"), df.Column("sma200")
	out := make([]bool, df.Len())
	for i := range out {
		out[i] = sma50[i] < sma200[i]
	}
	df.Flags["deathcross"] = out
}

// AddElderRay appends bull power (high - ema13), bear power (low - ema13)
// and the derived eri_buy / eri_sell flags.
func AddElderRay(df *core.Dataframe) error {
	if _, ok := df.Metadata["ema13"]; !ok {
		if err := AddEMA(df, 13); err != nil {
			return err
		}
	}

	n := df.Len()
	ema13 := df.Metadata["ema13"]
	bull := make(core.Series[float64], n)
	bear := make(core.Series[float64], n)
	for i := 0; i < n; i++ {
		bull[i] = df.High[i] - ema13[i]
		bear[i] = df.Low[i] - ema13[i]
	}

	eriBuy := make([]bool, n)
	eriSell := make([]bool, n)
	for i := 1; i < n; i++ {
		eriBuy[i] = (bear[i] < 0 && bear[i] > bear[i-1]) || bull[i] > bull[i-1]
		eriSell[i] = (bull[i] > 0 && bear[i] < bear[i-1]) || bull[i] < bull[i-1]
	}

	df.Metadata["elder_ray_bull"] = bull
	df.Metadata["elder_ray_bear"] = bear
	df.Flags["eri_buy"] = eriBuy
	df.Flags["eri_sell"] = eriSell
	return nil
}

// FBB band offsets against the 20-period typical-price SMA.
var fbbRatios = []struct {
	Suffix string
	Ratio  float64
}{
	{"0_236", 0.236},
	{"0_382", 0.382},
	{"0_5", 0.5},
	{"0_618", 0.618},
	{"0_764", 0.764},
	{"1", 1},
}

// AddFibonacciBollingerBands appends fbb_mid and the upper/lower bands at
// the Fibonacci offsets. Rows inside the warm-up window are zero.
func AddFibonacciBollingerBands(df *core.Dataframe, interval, multiplier int) {
	n := df.Len()
	tp := make([]float64, n)
	for i := 0; i < n; i++ {
		tp[i] = (df.High[i] + df.Low[i] + df.Close[i]) / 3
	}

	mid := make(core.Series[float64], n)
	sd := make([]float64, n)
	for i := interval - 1; i < n; i++ {
		window := tp[i-interval+1 : i+1]

		sum := 0.0
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(interval)

		// Sample standard deviation, matching pandas rolling().std().
		varSum := 0.0
		for _, v := range window {
			varSum += (v - mean) * (v - mean)
		}

		mid[i] = mean
		sd[i] = float64(multiplier) * math.Sqrt(varSum/float64(interval-1))
	}

	df.Metadata["fbb_mid"] = mid
	for _, r := range fbbRatios {
		upper := make(core.Series[float64], n)
		lower := make(core.Series[float64], n)
		for i := interval - 1; i < n; i++ {
			upper[i] = mid[i] + r.Ratio*sd[i]
			lower[i] = mid[i] - r.Ratio*sd[i]
		}
		df.Metadata["fbb_upper"+r.Suffix] = upper
		df.Metadata["fbb_lower"+r.Suffix] = lower
	}
}

// AddEMASignals appends the ema12/ema26 comparison flags and their
// single-row cross-over markers.
func AddEMASignals(df *core.Dataframe) {
	addCrossFlags(df, df.Metadata["ema12"], df.Metadata["ema26"], "ema12gtema26", "ema12ltema26")
}

// AddSMASignals appends the sma50/sma200 comparison flags.
func AddSMASignals(df *core.Dataframe) {
	addCrossFlags(df, df.Column("sma50"), df.Column("sma200"), "sma50gtsma200", "sma50ltsma200")
}

// AddMACDSignals appends the macd/signal comparison flags.
func AddMACDSignals(df *core.Dataframe) {
	addCrossFlags(df, df.Metadata["macd"], df.Metadata["signal"], "macdgtsignal", "macdltsignal")
}

// addCrossFlags computes above/below flags plus "co" columns that are true
// only on the row where the inequality starts to hold. The first row
// counts as a transition when the inequality holds there.
func addCrossFlags(df *core.Dataframe, a, b core.Series[float64], gtName, ltName string) {
	n := df.Len()
	gt := make([]bool, n)
	gtCo := make([]bool, n)
	lt := make([]bool, n)
	ltCo := make([]bool, n)

	for i := 0; i < n; i++ {
		gt[i] = a[i] > b[i]
		lt[i] = a[i] < b[i]
		if i == 0 {
			gtCo[i] = gt[i]
			ltCo[i] = lt[i]
		} else {
			gtCo[i] = gt[i] && !gt[i-1]
			ltCo[i] = lt[i] && !lt[i-1]
		}
	}

	df.Flags[gtName] = gt
	df.Flags[gtName+"co"] = gtCo
	df.Flags[ltName] = lt
	df.Flags[ltName+"co"] = ltCo
}

// rollingMean is pandas rolling(period, min_periods=1).mean().
func rollingMean(values core.Series[float64], period int) core.Series[float64] {
	out := make(core.Series[float64], len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// ewmSpan is pandas ewm(span=period, adjust=False).mean().
func ewmSpan(values core.Series[float64], period int) core.Series[float64] {
	out := make(core.Series[float64], len(values))
	if len(values) == 0 {
		return out
	}

	alpha := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
