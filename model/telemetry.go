package model

import "time"

// NumSlots is the number of hardware tracking channels on the aspect camera.
// Each slot can carry one star or fiducial light per dwell.
const NumSlots = 8

// FlagState is the state of a per-slot image quality flag.
type FlagState int

const (
	// FlagOK means the image processing flag reported no problem.
	FlagOK FlagState = iota
	// FlagBad means the flag tripped (radiation hit, saturated pixel, etc.).
	FlagBad
)

// OK reports whether the flag is clean.
func (f FlagState) OK() bool { return f == FlagOK }

// SlotSample holds the per-slot telemetry values at a single timestamp.
type SlotSample struct {
	// FidLight is true while the slot is tracking a fiducial light rather
	// than a star.
	FidLight bool

	// Tracking is true while the slot's image correlation is in TRAK
	// (as opposed to searching or idle).
	Tracking bool

	// Image quality flags: ionizing radiation, saturated pixel,
	// defective pixel, multiple star.
	IonizingRadiation FlagState
	SaturatedPixel    FlagState
	DefectivePixel    FlagState
	MultipleStar      FlagState

	// Onboard-measured centroid angular offsets in arcseconds. Only
	// meaningful while Tracking is true.
	Yag float64
	Zag float64
}

// TelemetrySample is one row of attitude telemetry: the onboard Kalman
// star count, the attitude estimate, and the per-slot image data.
type TelemetrySample struct {
	Time time.Time

	// KalmanStarCount is the onboard-reported number of slots currently
	// locked into the Kalman filter, 0 through NumSlots.
	KalmanStarCount int

	// Attitude is the estimated spacecraft orientation at this time.
	Attitude Quaternion

	Slots [NumSlots]SlotSample
}

// FlagSample is a timestamped boolean from an independently sampled
// telemetry signal, such as the multiple-star master enable switch.
type FlagSample struct {
	Time    time.Time
	Enabled bool
}
