// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package ptkey

import "math"

// Vector3 is a point or displacement in ℝ³.
type Vector3 struct {
	X, Y, Z float64
}

func (a Vector3) Add(b Vector3) Vector3 { return Vector3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vector3) Sub(b Vector3) Vector3 { return Vector3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vector3) Scale(s float64) Vector3 {
	return Vector3{a.X * s, a.Y * s, a.Z * s}
}

func (a Vector3) LengthSquared() float64 {
	return a.X*a.X + a.Y*a.Y + a.Z*a.Z
}

func (a Vector3) Length() float64 { return math.Sqrt(a.LengthSquared()) }

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max Vector3
}

// EmptyBox returns a box with inverted bounds, suitable as the zero value
// for a reduction: unioning any real box with it yields that box.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: Vector3{inf, inf, inf},
		Max: Vector3{-inf, -inf, -inf},
	}
}

// Union reduces a and b into the smallest box containing both; this is
// the associative-commutative combiner used for the bounding-box
// reduction across reader branches (§5 "Reduction operations").
func (a Box) Union(b Box) Box {
	return Box{
		Min: Vector3{
			X: math.Min(a.Min.X, b.Min.X),
			Y: math.Min(a.Min.Y, b.Min.Y),
			Z: math.Min(a.Min.Z, b.Min.Z),
		},
		Max: Vector3{
			X: math.Max(a.Max.X, b.Max.X),
			Y: math.Max(a.Max.Y, b.Max.Y),
			Z: math.Max(a.Max.Z, b.Max.Z),
		},
	}
}

func (a Box) Size() Vector3 { return a.Max.Sub(a.Min) }

func (a Box) Center() Vector3 {
	return a.Min.Add(a.Max).Scale(0.5)
}

// IntersectsSphere reports whether the box comes within radius of center;
// used by the density/pressure visitors' admissibility predicate.
func (a Box) IntersectsSphere(center Vector3, radius float64) bool {
	rsq := radius * radius
	dsq := 0.0
	for _, axis := range [3]struct{ lo, hi, p float64 }{
		{a.Min.X, a.Max.X, center.X},
		{a.Min.Y, a.Max.Y, center.Y},
		{a.Min.Z, a.Max.Z, center.Z},
	} {
		switch {
		case axis.lo-axis.p > 0:
			d := axis.lo - axis.p
			dsq += d * d
		case axis.p-axis.hi > 0:
			d := axis.p - axis.hi
			dsq += d * d
		}
		if dsq > rsq {
			return false
		}
	}
	return dsq <= rsq
}

// keyBits is the number of bits used per coordinate axis when
// bit-interleaving a quantized position into a Morton key, chosen so that
// 3*keyBits+1 (the leading marker bit) fits inside a 64-bit key.
const keyBits = 21

// NewFromUnitCoords computes the Morton key for a point already
// normalized into [0,1)³ (i.e. (p-universe.Min)/universe.Size), by
// quantizing each axis to keyBits bits and interleaving them, then
// setting the canonical leading marker bit at depth keyBits.
func NewFromUnitCoords(unit Vector3) Key {
	qx := quantize(unit.X)
	qy := quantize(unit.Y)
	qz := quantize(unit.Z)

	var k Key
	for i := keyBits - 1; i >= 0; i-- {
		bit := func(q uint32) Key { return Key((q >> uint(i)) & 1) }
		k = (k << 1) | bit(qx)
		k = (k << 1) | bit(qy)
		k = (k << 1) | bit(qz)
	}
	return k | (Key(1) << (3 * keyBits))
}

func quantize(u float64) uint32 {
	switch {
	case u < 0:
		u = 0
	case u >= 1:
		u = math.Nextafter(1, 0)
	}
	return uint32(u * float64(uint32(1)<<keyBits))
}
