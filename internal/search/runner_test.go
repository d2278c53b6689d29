package search

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sot/kalman-watch/core"
	"github.com/sot/kalman-watch/internal/archive"
	"github.com/sot/kalman-watch/internal/config"
	"github.com/sot/kalman-watch/internal/observability"
	"github.com/sot/kalman-watch/model"
)

const samplePeriod = 1025 * time.Millisecond

var scanBase = time.Date(2022, time.April, 1, 0, 0, 0, 0, time.UTC)

type recordedRun struct {
	obsid int
	run   core.AnomalyRun
}

type memorySink struct {
	mu   sync.Mutex
	runs []recordedRun
}

func (s *memorySink) RecordRun(obsid int, run core.AnomalyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, recordedRun{obsid: obsid, run: run})
	return nil
}

func addDwell(t *testing.T, a *archive.Archive, obsid int, start time.Time, n int) model.Dwell {
	t.Helper()
	d := model.Dwell{
		ObsID:       obsid,
		Start:       start,
		Stop:        start.Add(time.Duration(n) * samplePeriod),
		ManeuverEnd: start,
	}
	if err := a.AddDwell(d); err != nil {
		t.Fatalf("AddDwell(%d): %v", obsid, err)
	}
	return d
}

// guideTelem builds n samples with identity attitude and the given
// slots tracking stars at zero residual. mutate adjusts per-sample
// fields.
func guideTelem(start time.Time, n int, slots []int, mutate func(i int, s *model.TelemetrySample)) []model.TelemetrySample {
	telem := make([]model.TelemetrySample, n)
	for i := range telem {
		telem[i] = model.TelemetrySample{
			Time:            start.Add(time.Duration(i) * samplePeriod),
			KalmanStarCount: len(slots),
			Attitude:        model.Quaternion{Q4: 1},
		}
		for _, slot := range slots {
			telem[i].Slots[slot].Tracking = true
		}
		if mutate != nil {
			mutate(i, &telem[i])
		}
	}
	return telem
}

func guideCatalog(slots []int) []model.GuideCatalogEntry {
	var entries []model.GuideCatalogEntry
	for _, slot := range slots {
		entries = append(entries, model.GuideCatalogEntry{
			Slot: slot, StarID: int64(100 + slot), Type: model.EntryGUI,
		})
	}
	return entries
}

// testArchive has three dwells: 1001 develops a long run of marginal
// offsets with onboard count 1, 1002 stays clean, and 1003 has no
// telemetry at all.
func testArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a := archive.New()
	slots := []int{1, 2, 3}
	for _, slot := range slots {
		a.AddStar(model.Star{ID: int64(100 + slot), RA: 0, Dec: 0})
	}

	suspect := addDwell(t, a, 1001, scanBase, 30)
	a.SetGuideCatalog(1001, guideCatalog(slots))
	a.SetTelemetry(1001, &archive.DwellTelemetry{
		Samples: guideTelem(suspect.Start, 30, slots, func(i int, s *model.TelemetrySample) {
			if i >= 5 && i < 25 {
				s.KalmanStarCount = 1
				for _, slot := range slots {
					s.Slots[slot].Yag = 10 // residual of -10 arcsec, inside the marginal band
				}
			}
		}),
	})

	clean := addDwell(t, a, 1002, scanBase.Add(time.Hour), 30)
	a.SetGuideCatalog(1002, guideCatalog(slots))
	a.SetTelemetry(1002, &archive.DwellTelemetry{
		Samples: guideTelem(clean.Start, 30, slots, nil),
	})

	addDwell(t, a, 1003, scanBase.Add(2*time.Hour), 30)
	return a
}

func newTestRunner(t *testing.T, a *archive.Archive, sink Sink, metrics *observability.ScanCollector) *Runner {
	t.Helper()
	cfg := config.New()
	cfg.Workers = 2
	r, err := NewRunner(cfg, Deps{
		Dwells:    a,
		Telemetry: a,
		Catalogs:  a,
		Stars:     a,
		Metrics:   metrics,
		Sink:      sink,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	a := archive.New()
	full := Deps{Dwells: a, Telemetry: a, Catalogs: a, Stars: a}

	if _, err := NewRunner(nil, full); err != nil {
		t.Fatalf("NewRunner with full deps: %v", err)
	}

	drop := []func(d *Deps){
		func(d *Deps) { d.Dwells = nil },
		func(d *Deps) { d.Telemetry = nil },
		func(d *Deps) { d.Catalogs = nil },
		func(d *Deps) { d.Stars = nil },
	}
	for i, f := range drop {
		deps := full
		f(&deps)
		if _, err := NewRunner(nil, deps); err == nil {
			t.Errorf("case %d: missing collaborator accepted", i)
		}
	}
}

func TestScan_FlagsSuspectSkipsBroken(t *testing.T) {
	a := testArchive(t)
	sink := &memorySink{}
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewScanCollector(reg)
	if err != nil {
		t.Fatalf("NewScanCollector: %v", err)
	}
	r := newTestRunner(t, a, sink, metrics)

	report, err := r.Scan(context.Background(), scanBase.Add(-time.Hour), scanBase.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if report.Scanned != 2 || report.Skipped != 1 {
		t.Errorf("scanned/skipped = %d/%d, want 2/1", report.Scanned, report.Skipped)
	}
	ids := report.SuspectObsIDs()
	if len(ids) != 1 || ids[0] != 1001 {
		t.Fatalf("SuspectObsIDs = %v, want [1001]", ids)
	}

	if len(report.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(report.Findings))
	}
	runs := report.Findings[0].Runs
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if got := runs[0].Samples(); got != 20 {
		t.Errorf("run length = %d samples, want 20", got)
	}
	if runs[0].StartIndex != 5 || runs[0].EndIndex != 24 {
		t.Errorf("run bounds = [%d, %d], want [5, 24]", runs[0].StartIndex, runs[0].EndIndex)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.runs) != 1 || sink.runs[0].obsid != 1001 {
		t.Errorf("sink received %v, want one run for 1001", sink.runs)
	}

	if got := testutil.ToFloat64(metrics.SuspectDwells); got != 1 {
		t.Errorf("suspect dwell counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.AnomalySamples); got != 20 {
		t.Errorf("anomaly sample counter = %v, want 20", got)
	}
	if got := testutil.ToFloat64(metrics.DwellsScanned.WithLabelValues("skipped")); got != 1 {
		t.Errorf("skipped counter = %v, want 1", got)
	}
}

func TestScan_ZeroValueConfigStillScans(t *testing.T) {
	// A zero worker count must not leave the job feed blocked forever.
	a := testArchive(t)
	r, err := NewRunner(&config.Config{}, Deps{
		Dwells:    a,
		Telemetry: a,
		Catalogs:  a,
		Stars:     a,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	report, err := r.Scan(context.Background(), scanBase.Add(-time.Hour), scanBase.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Scanned != 2 || report.Skipped != 1 {
		t.Errorf("scanned/skipped = %d/%d, want 2/1", report.Scanned, report.Skipped)
	}
}

func TestScan_StopsOnCancelledContext(t *testing.T) {
	a := testArchive(t)
	r := newTestRunner(t, a, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Scan(ctx, scanBase.Add(-time.Hour), scanBase.Add(24*time.Hour))
	if err == nil {
		t.Error("expected context error from cancelled scan")
	}
}

func TestScan_EmitsSpansWhenTracingInitialized(t *testing.T) {
	var buf bytes.Buffer
	cfg := observability.TracingConfig{
		Enabled:      true,
		ServiceName:  "dwell-scanner-test",
		Exporter:     "stdout",
		SampleRatio:  1.0,
		StdoutWriter: &buf,
	}
	shutdown, err := observability.InitTracing(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() {
		if _, err := observability.InitTracing(context.Background(), observability.TracingConfig{}, nil); err != nil {
			t.Errorf("restore noop provider: %v", err)
		}
	})

	a := testArchive(t)
	r := newTestRunner(t, a, nil, nil)
	if _, err := r.Scan(context.Background(), scanBase.Add(-time.Hour), scanBase.Add(24*time.Hour)); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	observability.ShutdownWithTimeout(context.Background(), shutdown, nil)

	out := buf.String()
	for _, span := range []string{"Scan", "ScanDwell"} {
		if !strings.Contains(out, span) {
			t.Errorf("exported spans missing %q: %s", span, out)
		}
	}
}

func TestLowLockScan_FiltersByDuration(t *testing.T) {
	a := archive.New()
	d := addDwell(t, a, 2001, scanBase, 150)

	// Counts: an 80-sample drop (~82 s, inside the 60-120 s band), then
	// a recovery, then a 20-sample drop (~20 s, too short).
	a.SetTelemetry(2001, &archive.DwellTelemetry{
		Samples: guideTelem(d.Start, 150, []int{3}, func(i int, s *model.TelemetrySample) {
			switch {
			case i < 80:
				s.KalmanStarCount = 1
			case i >= 100 && i < 120:
				s.KalmanStarCount = 0
			default:
				s.KalmanStarCount = 5
			}
		}),
	})

	r := newTestRunner(t, a, nil, nil)
	findings, err := r.LowLockScan(context.Background(), scanBase.Add(-time.Hour), scanBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("LowLockScan: %v", err)
	}

	if len(findings) != 1 || findings[0].Dwell.ObsID != 2001 {
		t.Fatalf("findings = %+v, want one for 2001", findings)
	}
	ivs := findings[0].Intervals
	if len(ivs) != 1 {
		t.Fatalf("intervals = %d, want only the 80-sample drop", len(ivs))
	}
	if ivs[0].Samples != 80 {
		t.Errorf("interval samples = %d, want 80", ivs[0].Samples)
	}
	if dur := ivs[0].Duration(); dur <= 60*time.Second || dur >= 120*time.Second {
		t.Errorf("interval duration = %v, want inside (60s, 120s)", dur)
	}

	none, err := r.LowLockScan(context.Background(), scanBase.Add(-2*time.Hour), scanBase.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LowLockScan empty range: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("empty range returned %d findings", len(none))
	}
}
