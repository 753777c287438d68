package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/candlebot/candlebot/pkg/core"
)

// defaultCSVColumns is the column order assumed when the file has no header
// row. It matches what the tracker and order writers emit.
var defaultCSVColumns = map[string]int{
	"time": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5,
}

// csvHeader is the header row the downloader writes, in the default column
// order above.
var csvHeader = []string{"time", "open", "high", "low", "close", "volume"}

// CSVFeed serves candles from a local file, resampled to the requested
// granularity. It backs offline simulation runs so they need no venue at
// all.
type CSVFeed struct {
	market  string
	candles map[core.Granularity][]core.Candle
}

// NewCSVFeed reads the file, which holds candles at source granularity
// oldest first, and resamples them to target. Files may start with a header
// row naming the columns; headerless files use time, open, high, low,
// close, volume.
func NewCSVFeed(market, file string, source, target core.Granularity) (*CSVFeed, error) {
	candles, err := readCandlesFromCSV(market, file, source)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	feed := &CSVFeed{
		market:  market,
		candles: map[core.Granularity][]core.Candle{source: candles},
	}
	if err := feed.resample(source, target); err != nil {
		return nil, err
	}
	return feed, nil
}

func readCandlesFromCSV(market, file string, granularity core.Granularity) ([]core.Candle, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty file", core.ErrInsufficientData)
	}

	columns := parseCSVHeader(lines[0])
	if columns == nil {
		columns = defaultCSVColumns
	} else {
		lines = lines[1:]
	}

	candles := make([]core.Candle, 0, len(lines))
	for i, line := range lines {
		candle, err := parseCSVCandle(market, granularity, line, columns)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseCSVHeader returns the column index map when the first row is a
// header, nil when it already holds data.
func parseCSVHeader(row []string) map[string]int {
	if len(row) == 0 {
		return nil
	}
	if _, err := strconv.Atoi(row[0]); err == nil {
		return nil
	}

	columns := make(map[string]int, len(row))
	for i, name := range row {
		columns[name] = i
	}
	return columns
}

func parseCSVCandle(market string, granularity core.Granularity, line []string, columns map[string]int) (core.Candle, error) {
	field := func(name string) (float64, error) {
		idx, ok := columns[name]
		if !ok || idx >= len(line) {
			return 0, fmt.Errorf("missing column %q", name)
		}
		return strconv.ParseFloat(line[idx], 64)
	}

	ts, err := field("time")
	if err != nil {
		return core.Candle{}, err
	}

	candle := core.Candle{
		Market:      market,
		Granularity: granularity,
		Time:        time.Unix(int64(ts), 0).UTC(),
		Complete:    true,
	}
	if candle.Open, err = field("open"); err != nil {
		return core.Candle{}, err
	}
	if candle.High, err = field("high"); err != nil {
		return core.Candle{}, err
	}
	if candle.Low, err = field("low"); err != nil {
		return core.Candle{}, err
	}
	if candle.Close, err = field("close"); err != nil {
		return core.Candle{}, err
	}
	if candle.Volume, err = field("volume"); err != nil {
		return core.Candle{}, err
	}
	return candle, nil
}

// resample aggregates source candles into target buckets aligned on the
// target interval. Partial leading and trailing buckets are dropped.
func (c *CSVFeed) resample(source, target core.Granularity) error {
	if target == source {
		return nil
	}
	if target < source || target.Seconds()%source.Seconds() != 0 {
		return fmt.Errorf("%w: cannot resample %s to %s", core.ErrInvalidGranularity, source, target)
	}

	sourceCandles := c.candles[source]
	per := target.Seconds() / source.Seconds()

	out := make([]core.Candle, 0, len(sourceCandles)/per)
	var bucket core.Candle
	count := 0
	for _, candle := range sourceCandles {
		onBoundary := candle.Time.Unix()%int64(target.Seconds()) == 0
		if count == 0 && !onBoundary {
			continue
		}
		if onBoundary {
			bucket = candle
			bucket.Granularity = target
			count = 1
		} else {
			bucket.High = math.Max(bucket.High, candle.High)
			bucket.Low = math.Min(bucket.Low, candle.Low)
			bucket.Close = candle.Close
			bucket.Volume += candle.Volume
			count++
		}
		if count == per {
			out = append(out, bucket)
			count = 0
		}
	}

	c.candles[target] = out
	return nil
}

// Limit keeps only the trailing duration of candles on every granularity.
func (c *CSVFeed) Limit(duration time.Duration) *CSVFeed {
	for g, candles := range c.candles {
		if len(candles) == 0 {
			continue
		}
		start := candles[len(candles)-1].Time.Add(-duration)
		c.candles[g] = lo.Filter(candles, func(candle core.Candle, _ int) bool {
			return candle.Time.After(start)
		})
	}
	return c
}

// Candles returns all loaded candles at the given granularity.
func (c *CSVFeed) Candles(granularity core.Granularity) []core.Candle {
	return c.candles[granularity]
}

// CandlesByPeriod returns the candles within [start, end].
func (c *CSVFeed) CandlesByPeriod(granularity core.Granularity, start, end time.Time) []core.Candle {
	return lo.Filter(c.candles[granularity], func(candle core.Candle, _ int) bool {
		return !candle.Time.Before(start) && !candle.Time.After(end)
	})
}

// GetHistoricalData lets the feed stand in for a venue during simulation. A
// zero start/end returns the newest window, mirroring live adapters.
func (c *CSVFeed) GetHistoricalData(_ context.Context, _ string, granularity core.Granularity, start, end time.Time) ([]core.Candle, error) {
	candles, ok := c.candles[granularity]
	if !ok {
		return nil, fmt.Errorf("%w: no %s candles loaded", core.ErrInvalidGranularity, granularity)
	}

	if start.IsZero() && end.IsZero() {
		if len(candles) > 300 {
			candles = candles[len(candles)-300:]
		}
		out := make([]core.Candle, len(candles))
		copy(out, candles)
		return out, nil
	}
	return c.CandlesByPeriod(granularity, start, end), nil
}
