// Package ephem supplies spacecraft inertial velocity for velocity
// aberration correction of expected star positions.
package ephem

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/sot/kalman-watch/core"
)

// Static is a constant-velocity ephemeris, useful in tests and for
// short dwells where the orbital velocity barely changes.
type Static struct {
	Velocity core.Vec3
}

// VelocityECI returns the fixed velocity.
func (s Static) VelocityECI(t time.Time) (core.Vec3, error) {
	return s.Velocity, nil
}

// SGP4 propagates a two-line element set to obtain the spacecraft's
// inertial velocity at a given time.
type SGP4 struct {
	sat satellite.Satellite
}

// NewSGP4FromTLE constructs an SGP4 ephemeris from TLE lines.
func NewSGP4FromTLE(line1, line2 string) *SGP4 {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &SGP4{sat: sat}
}

// VelocityECI propagates to t and returns the ECI velocity in km/s.
// Implements core.Ephemeris.
func (e *SGP4) VelocityECI(t time.Time) (core.Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	_, vel := satellite.Propagate(e.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(vel.X) || math.IsNaN(vel.Y) || math.IsNaN(vel.Z) {
		return core.Vec3{}, fmt.Errorf("sgp4 propagation failed at %s", t.Format(time.RFC3339))
	}
	return core.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}, nil
}
