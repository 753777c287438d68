package core

import (
	"fmt"
	"strconv"
	"time"
)

// Candle is one OHLCV sample of a market at a given granularity.
type Candle struct {
	Market      string
	Granularity Granularity
	Time        time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	Complete    bool
}

func (c Candle) IsEmpty() bool {
	return c.Market == "" && c.Open == 0 && c.Close == 0 && c.Volume == 0
}

// ToSlice renders the candle as a CSV record with the given precision.
func (c Candle) ToSlice(precision int) []string {
	return []string{
		fmt.Sprintf("%d", c.Time.Unix()),
		strconv.FormatFloat(c.Open, 'f', precision, 64),
		strconv.FormatFloat(c.High, 'f', precision, 64),
		strconv.FormatFloat(c.Low, 'f', precision, 64),
		strconv.FormatFloat(c.Close, 'f', precision, 64),
		strconv.FormatFloat(c.Volume, 'f', precision, 64),
	}
}

// Less orders candles by time, then market, for priority-queue use.
func (c Candle) Less(j Item) bool {
	other := j.(Candle)

	if diff := other.Time.Sub(c.Time); diff != 0 {
		return diff > 0
	}
	return c.Market < other.Market
}
