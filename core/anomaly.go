package core

import (
	"math"
	"time"
)

// Default marginal-offset band and run thresholds for anomaly
// detection.
const (
	DefaultMarginalLow  = 5.0  // arcsec
	DefaultMarginalHigh = 20.0 // arcsec
	DefaultMinCount     = 3    // onboard count minus marginal slots below this is suspicious
	DefaultMaxRun       = 8    // consecutive suspicious samples tolerated
)

// AnomalyOptions tunes low-lock anomaly detection over a classified
// dwell.
type AnomalyOptions struct {
	MarginalLow  float64
	MarginalHigh float64
	MinCount     int
	MaxRun       int
}

// DefaultAnomalyOptions returns the thresholds used by the standing
// search.
func DefaultAnomalyOptions() AnomalyOptions {
	return AnomalyOptions{
		MarginalLow:  DefaultMarginalLow,
		MarginalHigh: DefaultMarginalHigh,
		MinCount:     DefaultMinCount,
		MaxRun:       DefaultMaxRun,
	}
}

// AnomalyRun is a contiguous stretch of samples where the onboard
// count, discounted by marginal-offset slots, drops suspiciously low.
type AnomalyRun struct {
	StartIndex int
	EndIndex   int // inclusive
	Start      time.Time
	Stop       time.Time
}

// Samples returns the run length in samples.
func (r AnomalyRun) Samples() int { return r.EndIndex - r.StartIndex + 1 }

// MarginalCounts returns, per sample, how many guide slots show a
// marginal offset: low <= |offset| < high on either axis.
func (res *Result) MarginalCounts(low, high float64) []int {
	counts := make([]int, len(res.Times))
	for i := range res.Times {
		n := 0
		for _, slot := range res.GuideSlots {
			if marginal(res.YagOffsets[i][slot], low, high) || marginal(res.ZagOffsets[i][slot], low, high) {
				n++
			}
		}
		counts[i] = n
	}
	return counts
}

func marginal(off, low, high float64) bool {
	a := math.Abs(off)
	return a >= low && a < high
}

// DetectAnomalies finds runs longer than MaxRun samples where
// (onboard count - marginal count) < MinCount with at least one
// marginal slot. A dwell with any such run is suspect.
func DetectAnomalies(res *Result, opts AnomalyOptions) []AnomalyRun {
	marginals := res.MarginalCounts(opts.MarginalLow, opts.MarginalHigh)

	flagged := make([]bool, len(res.Times))
	for i := range res.Times {
		flagged[i] = marginals[i] != 0 && res.OnboardCount[i]-marginals[i] < opts.MinCount
	}

	var runs []AnomalyRun
	for _, r := range consecutiveRuns(flagged) {
		if r.Samples() > opts.MaxRun {
			r.Start = res.Times[r.StartIndex]
			r.Stop = res.Times[r.EndIndex]
			runs = append(runs, r)
		}
	}
	return runs
}

// consecutiveRuns groups adjacent true indices into runs.
func consecutiveRuns(flagged []bool) []AnomalyRun {
	var runs []AnomalyRun
	start := -1
	for i, f := range flagged {
		switch {
		case f && start < 0:
			start = i
		case !f && start >= 0:
			runs = append(runs, AnomalyRun{StartIndex: start, EndIndex: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, AnomalyRun{StartIndex: start, EndIndex: len(flagged) - 1})
	}
	return runs
}

// Interval is a contiguous stretch of telemetry where a condition held.
type Interval struct {
	Start   time.Time
	Stop    time.Time
	Samples int
}

// Duration returns the interval length.
func (iv Interval) Duration() time.Duration { return iv.Stop.Sub(iv.Start) }

// LowLockIntervals finds the contiguous intervals where the onboard
// Kalman star count was at or below threshold. Intervals are bounded by
// the time of the first sample in the run and the first sample after
// it (or the last sample, at the end of the series).
func LowLockIntervals(times []time.Time, counts []int, threshold int) []Interval {
	if len(times) != len(counts) {
		return nil
	}
	var intervals []Interval
	start := -1
	for i, c := range counts {
		switch {
		case c <= threshold && start < 0:
			start = i
		case c > threshold && start >= 0:
			intervals = append(intervals, Interval{
				Start:   times[start],
				Stop:    times[i],
				Samples: i - start,
			})
			start = -1
		}
	}
	if start >= 0 {
		intervals = append(intervals, Interval{
			Start:   times[start],
			Stop:    times[len(times)-1],
			Samples: len(times) - start,
		})
	}
	return intervals
}

// FilterIntervalsByDuration keeps intervals with minDur < duration <
// maxDur. The standing search uses (60 s, 120 s): shorter drops are
// routine, longer ones are spurious telemetry artifacts.
func FilterIntervalsByDuration(intervals []Interval, minDur, maxDur time.Duration) []Interval {
	var kept []Interval
	for _, iv := range intervals {
		d := iv.Duration()
		if d > minDur && d < maxDur {
			kept = append(kept, iv)
		}
	}
	return kept
}
