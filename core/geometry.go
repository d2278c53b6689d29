package core

import (
	"math"

	"github.com/sot/kalman-watch/model"
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi

	// ArcsecPerDeg converts angular degrees to arcseconds.
	ArcsecPerDeg = 3600.0

	// speedOfLightKmS is used for the velocity aberration correction.
	speedOfLightKmS = 299792.458
)

// Vec3 is a unit-less inertial-frame vector. Star directions are unit
// vectors; spacecraft velocities are km/s.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Unit returns the normalized vector. The zero vector is returned
// unchanged.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// RADecToECI converts right ascension and declination in degrees to an
// ECI unit vector.
func RADecToECI(raDeg, decDeg float64) Vec3 {
	ra := raDeg * deg2rad
	dec := decDeg * deg2rad
	cosDec := math.Cos(dec)
	return Vec3{
		X: cosDec * math.Cos(ra),
		Y: cosDec * math.Sin(ra),
		Z: math.Sin(dec),
	}
}

// AberrationCorrect shifts a star's true direction to its apparent
// direction as seen from a spacecraft moving with the given inertial
// velocity (km/s). For guide-star work the first-order v/c form is
// accurate to well under a milliarcsecond.
func AberrationCorrect(star Vec3, velocityKmS Vec3) Vec3 {
	return star.Add(velocityKmS.Scale(1 / speedOfLightKmS)).Unit()
}

// BodyFrame rotates an inertial-frame vector into the spacecraft body
// frame using the inverse (transpose) of the attitude rotation matrix.
// The attitude quaternion maps body to inertial, so the transpose maps
// inertial to body.
func BodyFrame(q model.Quaternion, v Vec3) Vec3 {
	q = q.Normalized()
	x, y, z, w := q.Q1, q.Q2, q.Q3, q.Q4

	// Rows of the transposed attitude matrix.
	return Vec3{
		X: (1-2*(y*y+z*z))*v.X + 2*(x*y+z*w)*v.Y + 2*(x*z-y*w)*v.Z,
		Y: 2*(x*y-z*w)*v.X + (1-2*(x*x+z*z))*v.Y + 2*(y*z+x*w)*v.Z,
		Z: 2*(x*z+y*w)*v.X + 2*(y*z-x*w)*v.Y + (1-2*(x*x+y*y))*v.Z,
	}
}

// YagZag projects a body-frame star direction onto the aspect camera
// angular axes. The body X axis is the boresight; the two off-boresight
// components come out as angles in arcseconds.
func YagZag(body Vec3) (yag, zag float64) {
	yag = math.Atan2(body.Y, body.X) * rad2deg * ArcsecPerDeg
	zag = math.Atan2(body.Z, body.X) * rad2deg * ArcsecPerDeg
	return yag, zag
}

// ExpectedOffsets computes the expected yag/zag position of a star for
// a given attitude, optionally correcting for velocity aberration when
// vel is non-nil.
func ExpectedOffsets(q model.Quaternion, star Vec3, vel *Vec3) (yag, zag float64) {
	if vel != nil {
		star = AberrationCorrect(star, *vel)
	}
	return YagZag(BodyFrame(q, star))
}
