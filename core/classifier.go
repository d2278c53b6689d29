package core

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sot/kalman-watch/model"
)

// Input-shape errors. These abort classification of one dwell only and
// are never retriable.
var (
	// ErrNoTelemetry indicates an empty telemetry series.
	ErrNoTelemetry = errors.New("no telemetry samples for dwell")

	// ErrNoGuideStars indicates a catalog with no BOT or GUI entries.
	ErrNoGuideStars = errors.New("catalog has no guide or bot entries")
)

const (
	// DefaultLimit is the residual threshold in arcseconds.
	DefaultLimit = 20.0

	// lastTrackLag is how many samples back (~4.1 s at the nominal
	// telemetry rate) a slot must already have been tracking before it
	// counts as settled into the filter.
	lastTrackLag = 4
)

// defectivePixelCutoff is when the defective-pixel flag became
// meaningful onboard (2013:297:11:25:52 UTC). Samples at or before this
// time are not disqualified by a tripped DP flag.
var defectivePixelCutoff = time.Date(2013, time.October, 24, 11, 25, 52, 0, time.UTC)

// multiStarOverrideStart is the first dwell start date (2015:251) for
// which the multiple-star master switch telemetry exists, enabling the
// MS flag override.
var multiStarOverrideStart = time.Date(2015, time.September, 8, 0, 0, 0, 0, time.UTC)

// StarResolver supplies proper-motion-corrected star coordinates for a
// given observation epoch. Lookup misses must be reported as errors.
type StarResolver interface {
	Star(id int64, epoch time.Time) (model.Star, error)
}

// Ephemeris supplies the spacecraft's inertial velocity (km/s) for
// velocity aberration correction of expected star positions.
type Ephemeris interface {
	VelocityECI(t time.Time) (Vec3, error)
}

// Options tunes a classification run.
type Options struct {
	// Limit is the residual threshold in arcseconds. Zero means
	// DefaultLimit.
	Limit float64

	// NowFlags ignores the defective-pixel and multiple-star flags
	// entirely, for near-real-time checks where those flags are not yet
	// meaningful.
	NowFlags bool

	// MSEnable is the multiple-star master-switch telemetry, sampled on
	// its own timestamps. When present, and the dwell starts after
	// 2015:251, MS flag failures are ignored wherever the switch was
	// disabled.
	MSEnable []model.FlagSample

	// Ephemeris, when non-nil, enables velocity aberration correction
	// of the expected star positions.
	Ephemeris Ephemeris
}

func (o Options) limit() float64 {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// Result is the classification of one dwell.
type Result struct {
	// Times are the telemetry sample timestamps.
	Times []time.Time

	// Locked marks, per sample and slot, whether the slot is a valid
	// Kalman filter contributor.
	Locked [][model.NumSlots]bool

	// RecomputedCount is the per-sample sum of locked slots.
	RecomputedCount []int

	// OnboardCount is the onboard-reported Kalman star count, for
	// comparison against RecomputedCount.
	OnboardCount []int

	// YagOffsets and ZagOffsets are the per-sample, per-slot residuals
	// (expected minus measured, arcseconds). Slots without a guide
	// entry stay zero.
	YagOffsets [][model.NumSlots]float64
	ZagOffsets [][model.NumSlots]float64

	// GuideSlots lists the slots carrying BOT/GUI entries, ascending.
	GuideSlots []int
}

// Classify recomputes the Kalman lock state of every tracking slot at
// every telemetry sample of a dwell. It is a pure batch computation:
// telemetry and catalog are complete in-memory inputs, and the only
// external call is the star coordinate lookup per catalog entry.
func Classify(dwell model.Dwell, telem []model.TelemetrySample, catalog []model.GuideCatalogEntry, stars StarResolver, opts Options) (*Result, error) {
	if len(telem) == 0 {
		return nil, ErrNoTelemetry
	}
	for i := 1; i < len(telem); i++ {
		if !telem[i].Time.After(telem[i-1].Time) {
			return nil, fmt.Errorf("telemetry times not monotonic at sample %d", i)
		}
	}

	guide, err := guideEntries(catalog)
	if err != nil {
		return nil, err
	}

	n := len(telem)
	res := &Result{
		Times:           make([]time.Time, n),
		Locked:          make([][model.NumSlots]bool, n),
		RecomputedCount: make([]int, n),
		OnboardCount:    make([]int, n),
		YagOffsets:      make([][model.NumSlots]float64, n),
		ZagOffsets:      make([][model.NumSlots]float64, n),
	}
	for i, s := range telem {
		res.Times[i] = s.Time
		res.OnboardCount[i] = s.KalmanStarCount
	}

	// Expected star positions and residuals for each guide slot.
	for _, entry := range guide {
		res.GuideSlots = append(res.GuideSlots, entry.Slot)
		star, err := stars.Star(entry.StarID, dwell.ManeuverEnd)
		if err != nil {
			return nil, fmt.Errorf("star %d for slot %d: %w", entry.StarID, entry.Slot, err)
		}
		eci := RADecToECI(star.RA, star.Dec)
		for i, s := range telem {
			var vel *Vec3
			if opts.Ephemeris != nil {
				v, err := opts.Ephemeris.VelocityECI(s.Time)
				if err != nil {
					return nil, fmt.Errorf("ephemeris at %s: %w", s.Time.UTC().Format(time.RFC3339), err)
				}
				vel = &v
			}
			yag, zag := ExpectedOffsets(s.Attitude, eci, vel)
			res.YagOffsets[i][entry.Slot] = yag - s.Slots[entry.Slot].Yag
			res.ZagOffsets[i][entry.Slot] = zag - s.Slots[entry.Slot].Zag
		}
	}

	msOverride := !opts.NowFlags && len(opts.MSEnable) > 0 && dwell.Start.After(multiStarOverrideStart)
	limit := opts.limit()

	for i := range telem {
		count := 0
		for slot := 0; slot < model.NumSlots; slot++ {
			locked := slotLocked(telem, i, slot, limit, opts, msOverride, res)
			res.Locked[i][slot] = locked
			if locked {
				count++
			}
		}
		res.RecomputedCount[i] = count
	}
	return res, nil
}

// slotLocked applies the per-slot lock criteria at one sample.
func slotLocked(telem []model.TelemetrySample, i, slot int, limit float64, opts Options, msOverride bool, res *Result) bool {
	ss := telem[i].Slots[slot]

	// Fiducial lights never count toward the star count.
	if ss.FidLight {
		return false
	}
	if !ss.Tracking {
		return false
	}
	// The slot must also have been tracking one lag earlier. Samples
	// before the lag have no prior data and are assumed tracking.
	if i >= lastTrackLag && !telem[i-lastTrackLag].Slots[slot].Tracking {
		return false
	}

	if !ss.IonizingRadiation.OK() || !ss.SaturatedPixel.OK() {
		return false
	}

	if !opts.NowFlags {
		// The DP flag predates its own usefulness: it only disqualifies
		// samples taken after the flight software update.
		if !ss.DefectivePixel.OK() && telem[i].Time.After(defectivePixelCutoff) {
			return false
		}
		if !ss.MultipleStar.OK() {
			if !msOverride || msEnabledAt(opts.MSEnable, telem[i].Time) {
				return false
			}
		}
	}

	return math.Abs(res.YagOffsets[i][slot]) < limit && math.Abs(res.ZagOffsets[i][slot]) < limit
}

// msEnabledAt reports the master-switch state at time t by binary
// searching for the nearest preceding sample. Times before the first
// sample take the first sample's state.
func msEnabledAt(ms []model.FlagSample, t time.Time) bool {
	idx := sort.Search(len(ms), func(i int) bool { return ms[i].Time.After(t) }) - 1
	if idx < 0 {
		idx = 0
	}
	return ms[idx].Enabled
}

// guideEntries filters the catalog down to BOT/GUI entries and enforces
// the one-entry-per-slot invariant.
func guideEntries(catalog []model.GuideCatalogEntry) ([]model.GuideCatalogEntry, error) {
	var guide []model.GuideCatalogEntry
	seen := [model.NumSlots]bool{}
	for _, entry := range catalog {
		if !entry.Type.Guide() {
			continue
		}
		if entry.Slot < 0 || entry.Slot >= model.NumSlots {
			return nil, fmt.Errorf("catalog entry for star %d has invalid slot %d", entry.StarID, entry.Slot)
		}
		if seen[entry.Slot] {
			return nil, fmt.Errorf("slot %d has more than one guide entry", entry.Slot)
		}
		seen[entry.Slot] = true
		guide = append(guide, entry)
	}
	if len(guide) == 0 {
		return nil, ErrNoGuideStars
	}
	sort.Slice(guide, func(a, b int) bool { return guide[a].Slot < guide[b].Slot })
	return guide, nil
}
