package model

import "time"

// EntryType is the role of a guide catalog entry within a dwell.
type EntryType string

const (
	EntryBOT EntryType = "BOT" // acquisition and guiding
	EntryGUI EntryType = "GUI" // guiding only
	EntryACQ EntryType = "ACQ" // acquisition only
	EntryFID EntryType = "FID" // fiducial light
	EntryMON EntryType = "MON" // monitor window
)

// Guide reports whether entries of this type participate in Kalman
// locking. Only BOT and GUI stars do.
func (t EntryType) Guide() bool { return t == EntryBOT || t == EntryGUI }

// GuideCatalogEntry assigns one catalog object to a tracking slot for
// the duration of a dwell.
type GuideCatalogEntry struct {
	Slot   int
	StarID int64
	Type   EntryType
}

// Star is a catalog star with proper-motion-corrected coordinates at
// some observation epoch.
type Star struct {
	ID int64
	// RA and Dec in degrees, corrected to the observation date.
	RA  float64
	Dec float64
}

// Dwell is a contiguous attitude-hold period for a single observation.
type Dwell struct {
	ObsID int
	Start time.Time
	Stop  time.Time

	// ManeuverEnd is the end of the maneuver leading into this dwell,
	// used as the epoch for star coordinate lookups.
	ManeuverEnd time.Time
}

// Duration returns the dwell length.
func (d Dwell) Duration() time.Duration { return d.Stop.Sub(d.Start) }
