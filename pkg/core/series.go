package core

import (
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

// Series is an ordered time series of values, newest last.
type Series[T constraints.Ordered] []T

func (s Series[T]) Values() []T { return s }

func (s Series[T]) Length() int { return len(s) }

// Last returns the value at the given position counted from the end;
// position 0 is the newest value.
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// LastValues returns the newest `size` values, or the whole series when it
// is shorter than that.
func (s Series[T]) LastValues(size int) Series[T] {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Crossover reports whether the series moved above ref on the latest value.
func (s Series[T]) Crossover(ref Series[T]) bool {
	return s.Last(0) > ref.Last(0) && s.Last(1) <= ref.Last(1)
}

// Crossunder reports whether the series moved to or below ref on the latest
// value.
func (s Series[T]) Crossunder(ref Series[T]) bool {
	return s.Last(0) <= ref.Last(0) && s.Last(1) > ref.Last(1)
}

func (s Series[T]) Cross(ref Series[T]) bool {
	return s.Crossover(ref) || s.Crossunder(ref)
}

// Max returns the largest value in the series, the zero value when empty.
func (s Series[T]) Max() T {
	var max T
	for i, v := range s {
		if i == 0 || v > max {
			max = v
		}
	}
	return max
}

// Min returns the smallest value in the series, the zero value when empty.
func (s Series[T]) Min() T {
	var min T
	for i, v := range s {
		if i == 0 || v < min {
			min = v
		}
	}
	return min
}

// NumDecPlaces returns the number of decimal places of v, used to format
// prices with the precision the exchange reported them in.
func NumDecPlaces(v float64) int64 {
	str := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(str, '.'); i > -1 {
		return int64(len(str) - i - 1)
	}
	return 0
}
