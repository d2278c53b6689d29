// Package search runs the standing low-lock searches over dwell
// history: classify each dwell, compare the recomputed lock count with
// the onboard one, and report the dwells whose divergence persists.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sot/kalman-watch/core"
	"github.com/sot/kalman-watch/internal/archive"
	"github.com/sot/kalman-watch/internal/config"
	"github.com/sot/kalman-watch/internal/logging"
	"github.com/sot/kalman-watch/internal/observability"
	"github.com/sot/kalman-watch/model"
)

// Sink receives flagged anomaly runs. *results.Store satisfies it; a
// nil sink disables persistence.
type Sink interface {
	RecordRun(obsid int, run core.AnomalyRun) error
}

// Deps are the collaborators a Runner scans with. Dwells, Telemetry,
// Catalogs, and Stars are required; the rest are optional.
type Deps struct {
	Dwells    archive.DwellSource
	Telemetry archive.TelemetryProvider
	Catalogs  archive.GuideCatalogResolver
	Stars     archive.StarCatalog

	Log       logging.Logger
	Metrics   *observability.ScanCollector
	Sink      Sink
	Ephemeris core.Ephemeris
}

// Runner scans dwell ranges for Kalman-lock anomalies. Dwells are
// independent, so they are classified by a bounded worker pool and the
// per-dwell findings concatenated.
type Runner struct {
	cfg    *config.Config
	deps   Deps
	tracer trace.Tracer
}

// NewRunner validates the dependency set and builds a Runner.
func NewRunner(cfg *config.Config, deps Deps) (*Runner, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if cfg.Workers < 1 {
		// A hand-built config can carry a zero worker count; without at
		// least one worker the job feed would block forever.
		c := *cfg
		c.Workers = runtime.NumCPU()
		cfg = &c
	}
	switch {
	case deps.Dwells == nil:
		return nil, errors.New("search: Deps.Dwells is required")
	case deps.Telemetry == nil:
		return nil, errors.New("search: Deps.Telemetry is required")
	case deps.Catalogs == nil:
		return nil, errors.New("search: Deps.Catalogs is required")
	case deps.Stars == nil:
		return nil, errors.New("search: Deps.Stars is required")
	}
	if deps.Log == nil {
		deps.Log = logging.Noop()
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer("kalman-watch/search"),
	}, nil
}

// Finding is the outcome for one suspect dwell.
type Finding struct {
	Dwell model.Dwell
	Runs  []core.AnomalyRun
}

// Report summarises one scan.
type Report struct {
	Scanned  int
	Skipped  int
	Findings []Finding
}

// SuspectObsIDs returns the flagged observation IDs, ascending and
// de-duplicated.
func (r *Report) SuspectObsIDs() []int {
	seen := map[int]bool{}
	var ids []int
	for _, f := range r.Findings {
		if !seen[f.Dwell.ObsID] {
			seen[f.Dwell.ObsID] = true
			ids = append(ids, f.Dwell.ObsID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Scan classifies every dwell in [start, stop) and reports the ones
// with persistent low-lock anomalies. A single dwell failing to
// classify is logged and skipped, never fatal to the scan.
func (r *Runner) Scan(ctx context.Context, start, stop time.Time) (*Report, error) {
	ctx, log := logging.WithScanLogger(ctx, r.deps.Log)
	ctx, span := r.tracer.Start(ctx, "Scan")
	defer span.End()

	dwells, err := r.deps.Dwells.Dwells(start, stop)
	if err != nil {
		return nil, fmt.Errorf("enumerate dwells: %w", err)
	}
	log.Info(ctx, "scan started",
		logging.Int("dwells", len(dwells)),
		logging.Int("workers", r.cfg.Workers),
	)

	jobs := make(chan model.Dwell)
	outcomes := make(chan outcome, len(dwells))

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				outcomes <- r.scanDwell(ctx, log, d)
			}
		}()
	}

feed:
	for _, d := range dwells {
		select {
		case jobs <- d:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	report := &Report{}
	for o := range outcomes {
		switch {
		case o.skipped:
			report.Skipped++
		case len(o.runs) > 0:
			report.Scanned++
			report.Findings = append(report.Findings, Finding{Dwell: o.dwell, Runs: o.runs})
		default:
			report.Scanned++
		}
	}
	sort.Slice(report.Findings, func(i, j int) bool {
		return report.Findings[i].Dwell.Start.Before(report.Findings[j].Dwell.Start)
	})

	log.Info(ctx, "scan finished",
		logging.Int("scanned", report.Scanned),
		logging.Int("skipped", report.Skipped),
		logging.Int("suspect", len(report.Findings)),
	)
	return report, ctx.Err()
}

type outcome struct {
	dwell   model.Dwell
	runs    []core.AnomalyRun
	skipped bool
}

// scanDwell classifies one dwell and detects anomaly runs. All
// failures are reduced to a skip: lookup misses and shape errors on one
// dwell must not abort the others.
func (r *Runner) scanDwell(ctx context.Context, log logging.Logger, d model.Dwell) outcome {
	ctx, span := r.tracer.Start(ctx, "ScanDwell",
		trace.WithAttributes(attribute.Int("obsid", d.ObsID)))
	defer span.End()

	telem, err := r.deps.Telemetry.DwellTelemetry(d)
	if err != nil {
		log.Warn(ctx, "skipping dwell: telemetry", logging.Int("obsid", d.ObsID), logging.String("error", err.Error()))
		r.countOutcome("skipped")
		return outcome{dwell: d, skipped: true}
	}
	catalog, err := r.deps.Catalogs.GuideCatalog(d.ObsID, d.ManeuverEnd)
	if err != nil {
		log.Warn(ctx, "skipping dwell: guide catalog", logging.Int("obsid", d.ObsID), logging.String("error", err.Error()))
		r.countOutcome("skipped")
		return outcome{dwell: d, skipped: true}
	}

	opts := core.Options{
		Limit:     r.cfg.Limit,
		NowFlags:  r.cfg.NowFlags,
		MSEnable:  telem.MSEnable,
		Ephemeris: r.deps.Ephemeris,
	}

	begin := time.Now()
	res, err := core.Classify(d, telem.Samples, catalog, r.deps.Stars, opts)
	if err != nil {
		log.Warn(ctx, "skipping dwell: classify", logging.Int("obsid", d.ObsID), logging.String("error", err.Error()))
		r.countOutcome("skipped")
		return outcome{dwell: d, skipped: true}
	}
	r.observeClassify(time.Since(begin), res)

	runs := core.DetectAnomalies(res, core.AnomalyOptions{
		MarginalLow:  r.cfg.MarginalLow,
		MarginalHigh: r.cfg.MarginalHigh,
		MinCount:     r.cfg.MinCount,
		MaxRun:       r.cfg.MaxRun,
	})
	if len(runs) == 0 {
		r.countOutcome("ok")
		return outcome{dwell: d}
	}

	log.Info(ctx, "suspect dwell",
		logging.Int("obsid", d.ObsID),
		logging.Int("runs", len(runs)),
		logging.Int("longest", longestRun(runs)),
	)
	r.countOutcome("suspect")
	if r.deps.Metrics != nil {
		r.deps.Metrics.SuspectDwells.Inc()
		for _, run := range runs {
			r.deps.Metrics.AnomalySamples.Add(float64(run.Samples()))
		}
	}
	if r.deps.Sink != nil {
		for _, run := range runs {
			if err := r.deps.Sink.RecordRun(d.ObsID, run); err != nil {
				log.Warn(ctx, "record suspect run", logging.Int("obsid", d.ObsID), logging.String("error", err.Error()))
			}
		}
	}
	return outcome{dwell: d, runs: runs}
}

func (r *Runner) countOutcome(outcome string) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.DwellsScanned.WithLabelValues(outcome).Inc()
	}
}

func (r *Runner) observeClassify(elapsed time.Duration, res *core.Result) {
	if r.deps.Metrics == nil {
		return
	}
	r.deps.Metrics.ClassifyTime.Observe(elapsed.Seconds())
	if n := len(res.RecomputedCount); n > 0 {
		r.deps.Metrics.LastRecomputedCount.Set(float64(res.RecomputedCount[n-1]))
	}
}

func longestRun(runs []core.AnomalyRun) int {
	longest := 0
	for _, run := range runs {
		if run.Samples() > longest {
			longest = run.Samples()
		}
	}
	return longest
}
