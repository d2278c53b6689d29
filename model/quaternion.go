package model

import "math"

// Quaternion is a spacecraft attitude quaternion in scalar-last
// convention: Q1..Q3 are the vector components, Q4 the scalar.
type Quaternion struct {
	Q1, Q2, Q3, Q4 float64
}

// Norm returns the Euclidean norm of the quaternion.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.Q1*q.Q1 + q.Q2*q.Q2 + q.Q3*q.Q3 + q.Q4*q.Q4)
}

// Normalized returns a unit quaternion. Telemetered attitude quaternions
// are quantized, so callers normalize before building rotation matrices.
// A zero quaternion normalizes to identity.
func (q Quaternion) Normalized() Quaternion {
	n := q.Norm()
	if n == 0 {
		return Quaternion{Q4: 1}
	}
	return Quaternion{Q1: q.Q1 / n, Q2: q.Q2 / n, Q3: q.Q3 / n, Q4: q.Q4 / n}
}
