package exchange

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlebot/candlebot/pkg/core"
)

func writeCandleCSV(t *testing.T, header bool, start time.Time, step time.Duration, n int) string {
	t.Helper()

	var content string
	if header {
		content = "time,open,high,low,close,volume\n"
	}
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * step)
		price := 100.0 + float64(i)
		content += fmt.Sprintf("%d,%.2f,%.2f,%.2f,%.2f,%.2f\n",
			ts.Unix(), price, price+2, price-1, price+1, 10.0)
	}

	file := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

func TestCSVFeedReadsHeaderAndHeaderless(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, header := range []bool{true, false} {
		file := writeCandleCSV(t, header, start, time.Hour, 4)
		feed, err := NewCSVFeed("BTC-USD", file, core.OneHour, core.OneHour)
		require.NoError(t, err)

		candles := feed.Candles(core.OneHour)
		require.Len(t, candles, 4)
		assert.Equal(t, start, candles[0].Time)
		assert.Equal(t, 100.0, candles[0].Open)
		assert.Equal(t, 101.0, candles[0].Close)
		assert.Equal(t, "BTC-USD", candles[0].Market)
		assert.True(t, candles[0].Complete)
	}
}

func TestCSVFeedResample(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// Eight 15m candles resample into two 1h buckets.
	file := writeCandleCSV(t, true, start, 15*time.Minute, 8)

	feed, err := NewCSVFeed("BTC-USD", file, core.FifteenMinutes, core.OneHour)
	require.NoError(t, err)

	hourly := feed.Candles(core.OneHour)
	require.Len(t, hourly, 2)

	first := hourly[0]
	assert.Equal(t, start, first.Time)
	assert.Equal(t, core.OneHour, first.Granularity)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 104.0, first.Close)  // close of the fourth 15m candle
	assert.Equal(t, 105.0, first.High)   // high of the fourth 15m candle
	assert.Equal(t, 99.0, first.Low)     // low of the first
	assert.Equal(t, 40.0, first.Volume)  // four candles of 10
}

func TestCSVFeedResampleDropsPartialBuckets(t *testing.T) {
	// Start 15 minutes past the hour: the first three candles are a partial
	// bucket and only one full hour remains.
	start := time.Date(2024, 3, 1, 0, 15, 0, 0, time.UTC)
	file := writeCandleCSV(t, true, start, 15*time.Minute, 7)

	feed, err := NewCSVFeed("BTC-USD", file, core.FifteenMinutes, core.OneHour)
	require.NoError(t, err)

	hourly := feed.Candles(core.OneHour)
	require.Len(t, hourly, 1)
	assert.Equal(t, time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), hourly[0].Time)
}

func TestCSVFeedRejectsDownsample(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	file := writeCandleCSV(t, true, start, time.Hour, 2)

	_, err := NewCSVFeed("BTC-USD", file, core.OneHour, core.FifteenMinutes)
	require.ErrorIs(t, err, core.ErrInvalidGranularity)
}

func TestCSVFeedLimit(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	file := writeCandleCSV(t, true, start, time.Hour, 10)

	feed, err := NewCSVFeed("BTC-USD", file, core.OneHour, core.OneHour)
	require.NoError(t, err)

	feed.Limit(3 * time.Hour)
	assert.Len(t, feed.Candles(core.OneHour), 3)
}

func TestCSVFeedHistoricalData(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	file := writeCandleCSV(t, true, start, time.Hour, 6)

	feed, err := NewCSVFeed("BTC-USD", file, core.OneHour, core.OneHour)
	require.NoError(t, err)

	got, err := feed.GetHistoricalData(context.Background(), "BTC-USD", core.OneHour, start.Add(time.Hour), start.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	newest, err := feed.GetHistoricalData(context.Background(), "BTC-USD", core.OneHour, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, newest, 6)

	_, err = feed.GetHistoricalData(context.Background(), "BTC-USD", core.OneDay, time.Time{}, time.Time{})
	require.ErrorIs(t, err, core.ErrInvalidGranularity)
}
