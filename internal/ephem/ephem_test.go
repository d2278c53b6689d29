package ephem

import (
	"math"
	"testing"
	"time"

	"github.com/sot/kalman-watch/core"
)

func TestStatic_ReturnsFixedVelocity(t *testing.T) {
	e := Static{Velocity: core.Vec3{X: 1, Y: -2, Z: 3}}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{t1, t1.Add(time.Hour)} {
		v, err := e.VelocityECI(at)
		if err != nil {
			t.Fatalf("VelocityECI(%s): %v", at, err)
		}
		if v != (core.Vec3{X: 1, Y: -2, Z: 3}) {
			t.Fatalf("static velocity changed, got %#v", v)
		}
	}
}

// We don't assert exact orbital values (those belong to go-satellite);
// we just ensure the propagated speed is in the LEO ballpark and that
// the velocity direction changes over an orbit.
func TestSGP4_PropagatesPlausibleVelocity(t *testing.T) {
	// ISS sample TLE
	tle1 := "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	tle2 := "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"

	e := NewSGP4FromTLE(tle1, tle2)

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	v1, err := e.VelocityECI(t1)
	if err != nil {
		t.Fatalf("VelocityECI: %v", err)
	}

	speed := v1.Norm()
	if speed < 7 || speed > 8.5 {
		t.Errorf("ISS speed = %.3f km/s, want roughly 7.7", speed)
	}

	v2, err := e.VelocityECI(t1.Add(20 * time.Minute))
	if err != nil {
		t.Fatalf("VelocityECI: %v", err)
	}
	if v1 == v2 {
		t.Error("expected velocity to change over 20 minutes of orbit")
	}
	for _, c := range []float64{v2.X, v2.Y, v2.Z} {
		if math.IsNaN(c) {
			t.Fatalf("NaN component in propagated velocity %#v", v2)
		}
	}
}
