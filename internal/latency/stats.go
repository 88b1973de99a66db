package latency

import "math"

// Stats accumulates count/mean/variance/min/max over a stream of
// microsecond latency values using Welford's online algorithm, so a
// running standard deviation is available without a second pass over
// the samples.
type Stats struct {
	count int64
	mean  float64
	m2    float64
	min   int64
	max   int64
}

// Add folds one sample into the accumulator.
func (s *Stats) Add(v int64) {
	s.count++
	if s.count == 1 {
		s.min, s.max = v, v
	} else {
		if v < s.min {
			s.min = v
		}
		if v > s.max {
			s.max = v
		}
	}
	delta := float64(v) - s.mean
	s.mean += delta / float64(s.count)
	delta2 := float64(v) - s.mean
	s.m2 += delta * delta2
}

// Count returns the number of samples folded in so far.
func (s *Stats) Count() int64 { return s.count }

// Mean returns the running mean, or 0 if no samples were added.
func (s *Stats) Mean() float64 { return s.mean }

// Min returns the smallest sample seen, or 0 if no samples were added.
func (s *Stats) Min() int64 { return s.min }

// Max returns the largest sample seen, or 0 if no samples were added.
func (s *Stats) Max() int64 { return s.max }

// StdDev returns the sample standard deviation, or 0 with fewer than
// two samples.
func (s *Stats) StdDev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.count-1))
}

// Reset clears the accumulator for the next reporting interval.
func (s *Stats) Reset() {
	*s = Stats{}
}
