package search

import (
	"context"
	"fmt"
	"time"

	"github.com/sot/kalman-watch/core"
	"github.com/sot/kalman-watch/internal/logging"
	"github.com/sot/kalman-watch/model"
)

// LowLockFinding is a dwell containing short intervals where the
// onboard count sat at or below the configured threshold.
type LowLockFinding struct {
	Dwell     model.Dwell
	Intervals []core.Interval
}

// LowLockScan sweeps the onboard-reported count over [start, stop) for
// drops worth a closer look. Too-short intervals are routine
// maneuver-settling noise and too-long ones are spurious telemetry, so
// only drops inside the configured duration band are reported. This is
// the cheap first-pass filter; Scan does the full reclassification.
func (r *Runner) LowLockScan(ctx context.Context, start, stop time.Time) ([]LowLockFinding, error) {
	ctx, log := logging.WithScanLogger(ctx, r.deps.Log)

	dwells, err := r.deps.Dwells.Dwells(start, stop)
	if err != nil {
		return nil, fmt.Errorf("enumerate dwells: %w", err)
	}

	minDur := time.Duration(r.cfg.LowLockMinSec * float64(time.Second))
	maxDur := time.Duration(r.cfg.LowLockMaxSec * float64(time.Second))

	var findings []LowLockFinding
	for _, d := range dwells {
		if err := ctx.Err(); err != nil {
			return findings, err
		}

		telem, err := r.deps.Telemetry.DwellTelemetry(d)
		if err != nil {
			log.Warn(ctx, "skipping dwell: telemetry", logging.Int("obsid", d.ObsID), logging.String("error", err.Error()))
			continue
		}

		times := make([]time.Time, len(telem.Samples))
		counts := make([]int, len(telem.Samples))
		for i, s := range telem.Samples {
			times[i] = s.Time
			counts[i] = s.KalmanStarCount
		}

		intervals := core.FilterIntervalsByDuration(
			core.LowLockIntervals(times, counts, r.cfg.LowLockThreshold),
			minDur, maxDur,
		)
		if len(intervals) > 0 {
			findings = append(findings, LowLockFinding{Dwell: d, Intervals: intervals})
		}
	}
	return findings, nil
}
