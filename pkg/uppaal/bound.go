package uppaal

import (
	"math"
	"strconv"
)

// Bound is an upper bound on a clock difference: x_i - x_j <= Value, or
// x_i - x_j < Value when Strict is set.
type Bound struct {
	Value  int32
	Strict bool
}

var (
	// Infinity is the bound (infinity, <). Its value is the largest
	// 31-bit quantity, matching the packed encoding.
	Infinity = Bound{Value: math.MaxInt32 >> 1, Strict: true}

	// Zero is the bound (0, <=).
	Zero = Bound{Value: 0, Strict: false}
)

// DecodeBound unpacks a raw trace bound: the value is the raw number
// shifted right by one bit and the low bit is the strictness flag.
func DecodeBound(raw int32) Bound {
	return Bound{Value: raw >> 1, Strict: raw&1 == 1}
}

// Encode packs b back into the raw trace representation.
func (b Bound) Encode() int32 {
	raw := b.Value << 1
	if b.Strict {
		raw |= 1
	}
	return raw
}

// IsInfinite reports whether b carries the infinity value.
func (b Bound) IsInfinite() bool {
	return b.Value == Infinity.Value
}

// Less reports whether b is tighter than o: a smaller value, or the same
// value with b strict and o not.
func (b Bound) Less(o Bound) bool {
	if b.Value != o.Value {
		return b.Value < o.Value
	}
	return b.Strict && !o.Strict
}

// Add composes two bounds along a path of constraints. Infinity absorbs.
func (b Bound) Add(o Bound) Bound {
	if b.IsInfinite() || o.IsInfinite() {
		return Infinity
	}
	return Bound{Value: b.Value + o.Value, Strict: b.Strict || o.Strict}
}

// String renders b as "<=5", "<5" or "<inf".
func (b Bound) String() string {
	if b.IsInfinite() {
		return "<inf"
	}
	if b.Strict {
		return "<" + strconv.Itoa(int(b.Value))
	}
	return "<=" + strconv.Itoa(int(b.Value))
}
