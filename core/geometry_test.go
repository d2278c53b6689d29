package core

import (
	"math"
	"testing"

	"github.com/sot/kalman-watch/model"
)

const arcsecTol = 1e-6

func TestRADecToECI_Axes(t *testing.T) {
	cases := []struct {
		name    string
		ra, dec float64
		want    Vec3
	}{
		{"vernal equinox", 0, 0, Vec3{X: 1}},
		{"ra 90", 90, 0, Vec3{Y: 1}},
		{"north pole", 0, 90, Vec3{Z: 1}},
		{"south pole", 123, -90, Vec3{Z: -1}},
	}
	for _, tc := range cases {
		got := RADecToECI(tc.ra, tc.dec)
		if math.Abs(got.X-tc.want.X) > 1e-12 ||
			math.Abs(got.Y-tc.want.Y) > 1e-12 ||
			math.Abs(got.Z-tc.want.Z) > 1e-12 {
			t.Errorf("%s: RADecToECI(%v, %v) = %+v, want %+v", tc.name, tc.ra, tc.dec, got, tc.want)
		}
	}
}

func TestBodyFrame_IdentityAttitude(t *testing.T) {
	identity := model.Quaternion{Q4: 1}
	v := Vec3{X: 0.3, Y: -0.5, Z: 0.8}

	got := BodyFrame(identity, v)
	if got != v {
		t.Errorf("identity rotation changed vector: %+v -> %+v", v, got)
	}
}

func TestBodyFrame_YawMovesStarOppositeWay(t *testing.T) {
	// Yaw the spacecraft +10 arcsec about the body Z axis: a star on the
	// boresight should appear at -10 arcsec in yag.
	const yawArcsec = 10.0
	theta := yawArcsec / ArcsecPerDeg * deg2rad
	q := model.Quaternion{Q3: math.Sin(theta / 2), Q4: math.Cos(theta / 2)}

	yag, zag := YagZag(BodyFrame(q, Vec3{X: 1}))
	if math.Abs(yag+yawArcsec) > arcsecTol {
		t.Errorf("yag = %v arcsec, want %v", yag, -yawArcsec)
	}
	if math.Abs(zag) > arcsecTol {
		t.Errorf("zag = %v arcsec, want 0", zag)
	}
}

func TestBodyFrame_NormalizesQuaternion(t *testing.T) {
	// Telemetered quaternions are quantized; a scaled quaternion must
	// produce the same rotation.
	q := model.Quaternion{Q1: 0.2, Q2: 0.4, Q3: 0.1, Q4: 1.8}
	scaled := model.Quaternion{Q1: 0.4, Q2: 0.8, Q3: 0.2, Q4: 3.6}
	v := Vec3{X: 1, Y: 0.5, Z: -0.25}

	a := BodyFrame(q, v)
	b := BodyFrame(scaled, v)
	if math.Abs(a.X-b.X) > 1e-12 || math.Abs(a.Y-b.Y) > 1e-12 || math.Abs(a.Z-b.Z) > 1e-12 {
		t.Errorf("scaled quaternion gave different rotation: %+v vs %+v", a, b)
	}
}

func TestAberrationCorrect_ShiftMagnitude(t *testing.T) {
	// A velocity perpendicular to the line of sight shifts the apparent
	// direction by ~v/c radians.
	star := Vec3{X: 1}
	vel := Vec3{Y: 30} // km/s, roughly Earth orbital speed

	apparent := AberrationCorrect(star, vel)
	yag, _ := YagZag(apparent)

	wantArcsec := 30 / speedOfLightKmS * rad2deg * ArcsecPerDeg
	if math.Abs(yag-wantArcsec) > 0.01 {
		t.Errorf("aberration shift = %v arcsec, want ~%v", yag, wantArcsec)
	}
	if n := apparent.Norm(); math.Abs(n-1) > 1e-12 {
		t.Errorf("apparent direction not unit length: %v", n)
	}
}

func TestExpectedOffsets_ZeroResidualSetup(t *testing.T) {
	// Star on the boresight with identity attitude and no aberration:
	// both offsets are exactly zero. This is the geometry the classifier
	// tests build on.
	yag, zag := ExpectedOffsets(model.Quaternion{Q4: 1}, Vec3{X: 1}, nil)
	if yag != 0 || zag != 0 {
		t.Errorf("ExpectedOffsets = (%v, %v), want (0, 0)", yag, zag)
	}
}
