package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(closes []float64) *core.Dataframe {
	candles := make([]core.Candle, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = core.Candle{
			Market:      "BTC-USD",
			Granularity: core.OneHour,
			Time:        start.Add(time.Duration(i) * time.Hour),
			Open:        c * 0.999,
			High:        c * 1.002,
			Low:         c * 0.998,
			Close:       c,
			Volume:      100 + float64(i%7),
		}
	}
	return core.NewDataframe("BTC-USD", core.OneHour, candles)
}

func linearCloses(n int, from, to float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return out
}

func TestAddSMA_RollingMean(t *testing.T) {
	df := frame(linearCloses(30, 10, 39))
	require.NoError(t, AddSMA(df, 5))

	sma := df.Metadata["sma5"]
	// Warm-up rows use the expanding mean.
	assert.InDelta(t, df.Close[0], sma[0], 1e-9)
	assert.InDelta(t, (df.Close[0]+df.Close[1])/2, sma[1], 1e-9)

	want := (df.Close[25] + df.Close[26] + df.Close[27] + df.Close[28] + df.Close[29]) / 5
	assert.InDelta(t, want, sma[29], 1e-9)
}

func TestAddSMA_Preconditions(t *testing.T) {
	df := frame(linearCloses(30, 10, 39))
	require.ErrorIs(t, AddSMA(df, 4), core.ErrPeriodOutOfRange)
	require.ErrorIs(t, AddSMA(df, 201), core.ErrPeriodOutOfRange)
	require.ErrorIs(t, AddSMA(df, 50), core.ErrSeriesTooShort)
}

func TestAddEMA_Recursive(t *testing.T) {
	df := frame([]float64{10, 11, 12, 13, 14, 15, 16, 17})
	require.NoError(t, AddEMA(df, 5))

	ema := df.Metadata["ema5"]
	alpha := 2.0 / 6.0
	want := df.Close[0]
	assert.InDelta(t, want, ema[0], 1e-9)
	for i := 1; i < df.Len(); i++ {
		want = alpha*df.Close[i] + (1-alpha)*want
		assert.InDelta(t, want, ema[i], 1e-9)
	}
}

func TestAddMACD_Identity(t *testing.T) {
	df := frame(linearCloses(60, 100, 160))
	require.NoError(t, AddMACD(df))

	macd := df.Metadata["macd"]
	signal := df.Metadata["signal"]
	ema12 := df.Metadata["ema12"]
	ema26 := df.Metadata["ema26"]

	for i := 26; i < df.Len(); i++ {
		assert.InDelta(t, ema12[i]-ema26[i], macd[i], 1e-9)
	}

	// signal is the EMA9 of macd with adjust=false.
	alpha := 2.0 / 10.0
	want := macd[0]
	for i := 1; i < df.Len(); i++ {
		want = alpha*macd[i] + (1-alpha)*want
		assert.InDelta(t, want, signal[i], 1e-9)
	}
}

func TestAddMACD_TooShort(t *testing.T) {
	df := frame(linearCloses(20, 100, 120))
	require.ErrorIs(t, AddMACD(df), core.ErrSeriesTooShort)
}

func TestAddRSI_NeutralPrefixAndBounds(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3)
	}
	df := frame(closes)
	require.NoError(t, AddRSI(df, 14))

	rsi := df.Metadata["rsi14"]
	for i := 0; i < 14; i++ {
		assert.Equal(t, 50.0, rsi[i], "row %d inside warm-up", i)
	}
	for i := 14; i < df.Len(); i++ {
		assert.GreaterOrEqual(t, rsi[i], 0.0)
		assert.LessOrEqual(t, rsi[i], 100.0)
	}

	// Monotonic rise pegs RSI at 100.
	df = frame(linearCloses(40, 100, 140))
	require.NoError(t, AddRSI(df, 14))
	assert.InDelta(t, 100, df.Metadata["rsi14"].Last(0), 1e-9)
}

func TestAddOBV(t *testing.T) {
	df := frame([]float64{10, 11, 11, 9, 12})
	df.Volume = core.Series[float64]{100, 200, 300, 400, 500}
	AddOBV(df)

	obv := df.Metadata["obv"]
	assert.Equal(t, core.Series[float64]{100, 300, 300, -100, 400}, obv)

	obvPC := df.Metadata["obv_pc"]
	assert.Equal(t, 0.0, obvPC[0])
	assert.InDelta(t, 200, obvPC[1], 1e-9)
	assert.InDelta(t, 0, obvPC[2], 1e-9)
}

func TestAddChangePct(t *testing.T) {
	df := frame([]float64{100, 110, 99})
	AddChangePct(df)

	pc := df.Metadata["close_pc"]
	cpc := df.Metadata["close_cpc"]
	assert.Equal(t, 0.0, pc[0])
	assert.InDelta(t, 0.1, pc[1], 1e-9)
	assert.InDelta(t, -0.1, pc[2], 1e-9)
	assert.InDelta(t, 0.99, cpc[2], 1e-9)
}

func TestAddElderRay(t *testing.T) {
	df := frame(linearCloses(40, 100, 140))
	require.NoError(t, AddElderRay(df))

	bull := df.Metadata["elder_ray_bull"]
	ema13 := df.Metadata["ema13"]
	for i := range bull.Values() {
		assert.InDelta(t, df.High[i]-ema13[i], bull[i], 1e-9)
	}

	// Steady rise keeps bull power climbing.
	assert.True(t, df.Flags["eri_buy"][df.Len()-1])
}

func TestAddFibonacciBollingerBands_BandIdentity(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	df := frame(closes)
	AddFibonacciBollingerBands(df, 20, 3)

	mid := df.Metadata["fbb_mid"]
	// Warm-up rows are zero.
	assert.Zero(t, mid[18])
	assert.NotZero(t, mid[19])

	for _, r := range fbbRatios {
		upper := df.Metadata["fbb_upper"+r.Suffix]
		lower := df.Metadata["fbb_lower"+r.Suffix]
		for i := 19; i < df.Len(); i++ {
			assert.InDelta(t, upper[i]-mid[i], mid[i]-lower[i], 1e-8)
		}
	}

	// Band width scales with the ratio against the unit band.
	unit := df.Metadata["fbb_upper1"]
	half := df.Metadata["fbb_upper0_5"]
	for i := 19; i < df.Len(); i++ {
		assert.InDelta(t, 0.5*(unit[i]-mid[i]), half[i]-mid[i], 1e-8)
	}
}

func TestCrossFlags_SingleRow(t *testing.T) {
	df := frame(linearCloses(10, 100, 109))
	a := core.Series[float64]{1, 1, 2, 3, 3, 2, 1, 1, 2, 3}
	b := core.Series[float64]{2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	addCrossFlags(df, a, b, "agtb", "altb")

	gt := df.Flags["agtb"]
	gtCo := df.Flags["agtbco"]
	ltCo := df.Flags["altbco"]

	assert.Equal(t, []bool{false, false, false, true, true, false, false, false, false, true}, gt)
	assert.Equal(t, []bool{false, false, false, true, false, false, false, false, false, true}, gtCo)
	// The crossing-above rows never flag crossing-below.
	assert.Equal(t, []bool{true, false, false, false, false, false, true, false, false, false}, ltCo)
}

func TestAddAll_ShortFrameNeutralGoldenCross(t *testing.T) {
	df := frame(linearCloses(120, 100, 220))
	require.NoError(t, AddAll(df))

	_, hasSMA200 := df.Metadata["sma200"]
	assert.False(t, hasSMA200)
	for _, v := range df.Flags["goldencross"] {
		assert.True(t, v)
	}

	// Mandatory strategy columns are always present.
	for _, name := range []string{"ema12gtema26co", "macdgtsignal", "macdltsignalco"} {
		_, ok := df.Flags[name]
		assert.True(t, ok, name)
	}
}

func TestAddAll_FullFrame(t *testing.T) {
	df := frame(linearCloses(300, 100, 400))
	require.NoError(t, AddAll(df))

	assert.Contains(t, df.Metadata, "sma200")
	assert.Contains(t, df.Metadata, "rsi14")
	assert.Contains(t, df.Flags, "goldencross")
	assert.Contains(t, df.Flags, "hammer")
	assert.Contains(t, df.Flags, "astral_buy")

	// A monotonic up-trend keeps SMA50 above SMA200 at the tail.
	assert.True(t, df.Flags["goldencross"][df.Len()-1])
}
