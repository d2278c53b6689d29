// Package archive defines the collaborator contracts the classifier
// and search tooling consume (telemetry retrieval, star catalog, guide
// catalog, dwell history) and provides a thread-safe in-memory
// implementation of all of them for tests and scenario replays.
//
// The real implementations are external mission services; nothing in
// this module persists engineering telemetry.
package archive

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sot/kalman-watch/model"
)

// ErrNotFound is returned by every lookup that cannot resolve its key.
// Callers must handle the miss case explicitly; there is no silent
// fallthrough.
var ErrNotFound = errors.New("not found")

// DwellTelemetry is the complete telemetry set for one dwell: the
// time-aligned attitude samples plus the independently sampled
// multiple-star master-switch series.
type DwellTelemetry struct {
	Samples  []model.TelemetrySample
	MSEnable []model.FlagSample
}

// TelemetryProvider retrieves the telemetry set for a dwell.
type TelemetryProvider interface {
	DwellTelemetry(d model.Dwell) (*DwellTelemetry, error)
}

// StarCatalog resolves a star's proper-motion-corrected coordinates at
// an observation epoch.
type StarCatalog interface {
	Star(id int64, epoch time.Time) (model.Star, error)
}

// GuideCatalogResolver returns the slot assignment table valid for an
// observation at the given epoch.
type GuideCatalogResolver interface {
	GuideCatalog(obsid int, epoch time.Time) ([]model.GuideCatalogEntry, error)
}

// DwellSource enumerates dwells overlapping a time range.
type DwellSource interface {
	Dwells(start, stop time.Time) ([]model.Dwell, error)
}

// Archive is an in-memory implementation of all four collaborator
// contracts. It is constructed explicitly and passed by reference to
// analysis code; there is no package-level state.
type Archive struct {
	mu sync.RWMutex

	dwells    []model.Dwell
	telemetry map[int]*DwellTelemetry
	catalogs  map[int][]model.GuideCatalogEntry
	stars     map[int64]model.Star
}

// New constructs an empty Archive.
func New() *Archive {
	return &Archive{
		telemetry: make(map[int]*DwellTelemetry),
		catalogs:  make(map[int][]model.GuideCatalogEntry),
		stars:     make(map[int64]model.Star),
	}
}

// AddDwell records a dwell. It returns an error if the obsid is already
// present.
func (a *Archive) AddDwell(d model.Dwell) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, existing := range a.dwells {
		if existing.ObsID == d.ObsID {
			return fmt.Errorf("dwell with obsid %d already exists", d.ObsID)
		}
	}
	a.dwells = append(a.dwells, d)
	sort.Slice(a.dwells, func(i, j int) bool { return a.dwells[i].Start.Before(a.dwells[j].Start) })
	return nil
}

// SetTelemetry attaches a telemetry set to an obsid, replacing any
// previous set.
func (a *Archive) SetTelemetry(obsid int, t *DwellTelemetry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.telemetry[obsid] = t
}

// SetGuideCatalog attaches a slot assignment table to an obsid.
func (a *Archive) SetGuideCatalog(obsid int, entries []model.GuideCatalogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.catalogs[obsid] = entries
}

// AddStar records a star's coordinates.
func (a *Archive) AddStar(s model.Star) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stars[s.ID] = s
}

// DwellTelemetry implements TelemetryProvider.
func (a *Archive) DwellTelemetry(d model.Dwell) (*DwellTelemetry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.telemetry[d.ObsID]
	if !ok {
		return nil, fmt.Errorf("telemetry for obsid %d: %w", d.ObsID, ErrNotFound)
	}
	return t, nil
}

// Star implements StarCatalog. The in-memory archive stores coordinates
// already corrected to the epoch of interest, so the epoch argument
// only participates in the contract.
func (a *Archive) Star(id int64, epoch time.Time) (model.Star, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.stars[id]
	if !ok {
		return model.Star{}, fmt.Errorf("star %d: %w", id, ErrNotFound)
	}
	return s, nil
}

// GuideCatalog implements GuideCatalogResolver.
func (a *Archive) GuideCatalog(obsid int, epoch time.Time) ([]model.GuideCatalogEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries, ok := a.catalogs[obsid]
	if !ok {
		return nil, fmt.Errorf("guide catalog for obsid %d: %w", obsid, ErrNotFound)
	}
	out := make([]model.GuideCatalogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Dwells implements DwellSource, returning dwells overlapping
// [start, stop) in start order.
func (a *Archive) Dwells(start, stop time.Time) ([]model.Dwell, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []model.Dwell
	for _, d := range a.dwells {
		if d.Stop.After(start) && d.Start.Before(stop) {
			out = append(out, d)
		}
	}
	return out, nil
}
