package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScanCollector bundles Prometheus metrics for the dwell scanner and
// provides a ready-to-serve /metrics handler.
type ScanCollector struct {
	gatherer prometheus.Gatherer

	DwellsScanned *prometheus.CounterVec
	ClassifyTime  prometheus.Histogram

	SuspectDwells  prometheus.Counter
	AnomalySamples prometheus.Counter

	LastRecomputedCount prometheus.Gauge
}

// NewScanCollector registers scanner Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry
// when nil.
func NewScanCollector(reg prometheus.Registerer) (*ScanCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	scanned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kalwatch_dwells_scanned_total",
		Help: "Total dwells processed by the scanner, labeled by outcome (ok, skipped, suspect).",
	}, []string{"outcome"})
	scanned, err := registerCounterVec(reg, scanned, "kalwatch_dwells_scanned_total")
	if err != nil {
		return nil, err
	}

	classifyTime, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kalwatch_classify_duration_seconds",
		Help:    "Wall time spent classifying a single dwell.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "kalwatch_classify_duration_seconds")
	if err != nil {
		return nil, err
	}

	suspect, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kalwatch_suspect_dwells_total",
		Help: "Dwells flagged with a low-lock anomaly run.",
	}), "kalwatch_suspect_dwells_total")
	if err != nil {
		return nil, err
	}

	anomalySamples, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kalwatch_anomaly_samples_total",
		Help: "Telemetry samples inside flagged anomaly runs.",
	}), "kalwatch_anomaly_samples_total")
	if err != nil {
		return nil, err
	}

	lastCount, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kalwatch_last_recomputed_count",
		Help: "Recomputed locked-slot count at the final sample of the most recent dwell.",
	}), "kalwatch_last_recomputed_count")
	if err != nil {
		return nil, err
	}

	return &ScanCollector{
		gatherer:            gatherer,
		DwellsScanned:       scanned,
		ClassifyTime:        classifyTime,
		SuspectDwells:       suspect,
		AnomalySamples:      anomalySamples,
		LastRecomputedCount: lastCount,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ScanCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
