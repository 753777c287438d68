package exchange

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
)

// downloadBatch matches the page size the venue adapters serve.
const downloadBatch = 300

// Downloader saves historical candles to a CSV file the CSVFeed can read
// back, so simulations can run offline against recorded data.
type Downloader struct {
	exchange core.Exchange
	log      logger.Logger
}

func NewDownloader(exchange core.Exchange, log logger.Logger) Downloader {
	return Downloader{exchange: exchange, log: log}
}

// DownloadParams is the time range to fetch.
type DownloadParams struct {
	Start time.Time
	End   time.Time
}

type DownloadOption func(*DownloadParams)

// WithInterval downloads the given period.
func WithInterval(start, end time.Time) DownloadOption {
	return func(p *DownloadParams) {
		p.Start = start
		p.End = end
	}
}

// WithDays downloads the last days of history.
func WithDays(days int) DownloadOption {
	return func(p *DownloadParams) {
		p.End = time.Now().UTC()
		p.Start = p.End.AddDate(0, 0, -days)
	}
}

// Download fetches candles in batches and writes them to file, oldest
// first, in the feed's column order. The default range is the last month.
func (d Downloader) Download(ctx context.Context, market string, granularity core.Granularity, file string, options ...DownloadOption) error {
	now := time.Now().UTC()
	params := &DownloadParams{Start: now.AddDate(0, -1, 0), End: now}
	for _, option := range options {
		option(params)
	}
	params.Start = params.Start.Truncate(granularity.Duration())
	if params.End.After(now) {
		params.End = now
	}
	if !params.Start.Before(params.End) {
		return fmt.Errorf("download start %s not before end %s", params.Start, params.End)
	}

	out, err := os.Create(file)
	if err != nil {
		return err
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	expected := int(params.End.Sub(params.Start)/granularity.Duration()) + 1
	d.log.Infof("downloading %d %s candles of %s", expected, granularity, market)
	bar := progressbar.Default(int64(expected))

	written := 0
	batchSpan := time.Duration(downloadBatch) * granularity.Duration()
	for cursor := params.Start; cursor.Before(params.End); cursor = cursor.Add(batchSpan) {
		batchEnd := cursor.Add(batchSpan - time.Second)
		if batchEnd.After(params.End) {
			batchEnd = params.End
		}

		candles, err := d.exchange.GetHistoricalData(ctx, market, granularity, cursor, batchEnd)
		if err != nil {
			return fmt.Errorf("download %s: %w", market, err)
		}

		for _, candle := range candles {
			if err := writer.Write(candle.ToSlice(8)); err != nil {
				return err
			}
		}
		written += len(candles)

		if err := bar.Add(len(candles)); err != nil {
			d.log.Warnf("update progress bar: %v", err)
		}
	}

	if err := bar.Close(); err != nil {
		d.log.Warnf("close progress bar: %v", err)
	}
	if missing := expected - written; missing > 0 {
		d.log.Warnf("%d candles missing from the downloaded range", missing)
	}

	writer.Flush()
	return writer.Error()
}
