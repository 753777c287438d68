package core

import "time"

// Dataframe is a column-oriented view over a candle history. Indicator
// columns live in Metadata, boolean columns (cross-over flags, candlestick
// patterns) in Flags. All columns share the same row count as Time.
type Dataframe struct {
	Market      string
	Granularity Granularity

	Open   Series[float64]
	High   Series[float64]
	Low    Series[float64]
	Close  Series[float64]
	Volume Series[float64]

	Time     []time.Time
	Metadata map[string]Series[float64]
	Flags    map[string][]bool
}

// NewDataframe builds a dataframe from candles ordered oldest first.
func NewDataframe(market string, granularity Granularity, candles []Candle) *Dataframe {
	df := &Dataframe{
		Market:      market,
		Granularity: granularity,
		Open:        make(Series[float64], len(candles)),
		High:        make(Series[float64], len(candles)),
		Low:         make(Series[float64], len(candles)),
		Close:       make(Series[float64], len(candles)),
		Volume:      make(Series[float64], len(candles)),
		Time:        make([]time.Time, len(candles)),
		Metadata:    make(map[string]Series[float64]),
		Flags:       make(map[string][]bool),
	}

	for i, c := range candles {
		df.Open[i] = c.Open
		df.High[i] = c.High
		df.Low[i] = c.Low
		df.Close[i] = c.Close
		df.Volume[i] = c.Volume
		df.Time[i] = c.Time
	}

	return df
}

func (df Dataframe) Len() int { return len(df.Time) }

// LastTime returns the timestamp of the newest row, the zero time when the
// frame is empty.
func (df Dataframe) LastTime() time.Time {
	if len(df.Time) == 0 {
		return time.Time{}
	}
	return df.Time[len(df.Time)-1]
}

// Sample returns a window over the newest `positions` rows. Column slices
// are shared with the receiver, not copied.
func (df Dataframe) Sample(positions int) Dataframe {
	size := len(df.Time)
	start := size - positions
	if start <= 0 {
		return df
	}

	sample := Dataframe{
		Market:      df.Market,
		Granularity: df.Granularity,
		Open:        df.Open.LastValues(positions),
		High:        df.High.LastValues(positions),
		Low:         df.Low.LastValues(positions),
		Close:       df.Close.LastValues(positions),
		Volume:      df.Volume.LastValues(positions),
		Time:        df.Time[start:],
		Metadata:    make(map[string]Series[float64]),
		Flags:       make(map[string][]bool),
	}

	for key := range df.Metadata {
		sample.Metadata[key] = df.Metadata[key].LastValues(positions)
	}
	for key := range df.Flags {
		sample.Flags[key] = df.Flags[key][start:]
	}

	return sample
}

// Copy returns a deep copy, so indicator decoration never mutates the
// frame held by the caller.
func (df Dataframe) Copy() *Dataframe {
	cp := Dataframe{
		Market:      df.Market,
		Granularity: df.Granularity,
		Open:        append(Series[float64]{}, df.Open...),
		High:        append(Series[float64]{}, df.High...),
		Low:         append(Series[float64]{}, df.Low...),
		Close:       append(Series[float64]{}, df.Close...),
		Volume:      append(Series[float64]{}, df.Volume...),
		Time:        append([]time.Time{}, df.Time...),
		Metadata:    make(map[string]Series[float64], len(df.Metadata)),
		Flags:       make(map[string][]bool, len(df.Flags)),
	}

	for key, col := range df.Metadata {
		cp.Metadata[key] = append(Series[float64]{}, col...)
	}
	for key, col := range df.Flags {
		cp.Flags[key] = append([]bool{}, col...)
	}

	return &cp
}

// Column returns the named metadata column, or a zero-filled column of the
// right length when it was never computed.
func (df Dataframe) Column(name string) Series[float64] {
	if col, ok := df.Metadata[name]; ok {
		return col
	}
	return make(Series[float64], df.Len())
}

// Flag returns the newest value of the named boolean column, false when the
// column is absent or empty.
func (df Dataframe) Flag(name string) bool {
	col, ok := df.Flags[name]
	if !ok || len(col) == 0 {
		return false
	}
	return col[len(col)-1]
}

// Metric returns the newest value of the named metadata column, zero when
// the column is absent or empty.
func (df Dataframe) Metric(name string) float64 {
	col, ok := df.Metadata[name]
	if !ok || len(col) == 0 {
		return 0
	}
	return col.Last(0)
}
