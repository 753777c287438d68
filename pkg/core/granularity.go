package core

import (
	"fmt"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Granularity is a candle interval expressed in seconds. Only the intervals
// shared by Coinbase Pro, Binance and Kucoin are supported.
type Granularity int

const (
	OneMinute      Granularity = 60
	FiveMinutes    Granularity = 300
	FifteenMinutes Granularity = 900
	OneHour        Granularity = 3600
	SixHours       Granularity = 21600
	OneDay         Granularity = 86400
)

var granularities = []Granularity{
	OneMinute, FiveMinutes, FifteenMinutes, OneHour, SixHours, OneDay,
}

var granularityLabels = map[Granularity]string{
	OneMinute:      "1m",
	FiveMinutes:    "5m",
	FifteenMinutes: "15m",
	OneHour:        "1h",
	SixHours:       "6h",
	OneDay:         "1d",
}

func (g Granularity) Seconds() int { return int(g) }

func (g Granularity) Duration() time.Duration { return time.Duration(g) * time.Second }

func (g Granularity) String() string {
	if label, ok := granularityLabels[g]; ok {
		return label
	}
	return strconv.Itoa(int(g))
}

func (g Granularity) IsValid() bool {
	_, ok := granularityLabels[g]
	return ok
}

// ParseGranularity accepts the numeric form ("3600"), the short label
// ("1h") or any duration string str2duration understands ("1h30m" is
// rejected because it does not land on a supported interval).
func ParseGranularity(s string) (Granularity, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		g := Granularity(secs)
		if !g.IsValid() {
			return 0, fmt.Errorf("unsupported granularity %q: %w", s, ErrInvalidGranularity)
		}
		return g, nil
	}

	for g, label := range granularityLabels {
		if label == s {
			return g, nil
		}
	}

	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("unsupported granularity %q: %w", s, ErrInvalidGranularity)
	}

	g := Granularity(d / time.Second)
	if !g.IsValid() {
		return 0, fmt.Errorf("unsupported granularity %q: %w", s, ErrInvalidGranularity)
	}
	return g, nil
}

// Granularities returns the supported intervals in ascending order.
func Granularities() []Granularity {
	out := make([]Granularity, len(granularities))
	copy(out, granularities)
	return out
}
