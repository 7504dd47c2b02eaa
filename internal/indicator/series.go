package indicator

import (
	"math"
	"time"
)

// Series is a time-ordered sequence of portfolio values.
type Series struct {
	Timestamps []time.Time
	Values     []float64
}

// NewSeries pairs timestamps with values; the shorter slice bounds the length.
func NewSeries(timestamps []time.Time, values []float64) Series {
	n := min(len(timestamps), len(values))
	series := Series{
		Timestamps: make([]time.Time, n),
		Values:     make([]float64, n),
	}
	for i := 0; i < n; i++ {
		series.Timestamps[i] = timestamps[i].UTC()
		series.Values[i] = values[i]
	}
	return series
}

// Len returns the number of samples.
func (s Series) Len() int {
	return len(s.Values)
}

// Last returns the last value, NaN when empty.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// Prev returns the value before the last one, NaN when there are fewer than two.
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return values[len(values)-2]
}
