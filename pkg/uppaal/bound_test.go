package uppaal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeBound(t *testing.T) {
	tests := []struct {
		name string
		raw  int32
		want Bound
	}{
		{"zero non-strict", 0, Bound{Value: 0, Strict: false}},
		{"zero strict", 1, Bound{Value: 0, Strict: true}},
		{"positive non-strict", 10, Bound{Value: 5, Strict: false}},
		{"positive strict", 11, Bound{Value: 5, Strict: true}},
		{"negative non-strict", -6, Bound{Value: -3, Strict: false}},
		{"negative strict", -5, Bound{Value: -3, Strict: true}},
		{"infinity", math.MaxInt32, Infinity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeBound(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.Encode())
		})
	}
}

func TestBoundConstants(t *testing.T) {
	assert.Equal(t, int32(math.MaxInt32>>1), Infinity.Value)
	assert.True(t, Infinity.Strict)
	assert.True(t, Infinity.IsInfinite())
	assert.Equal(t, Bound{}, Zero)
	assert.False(t, Zero.IsInfinite())
}

func TestBoundLess(t *testing.T) {
	le5 := Bound{Value: 5}
	lt5 := Bound{Value: 5, Strict: true}
	le3 := Bound{Value: 3}

	assert.True(t, le3.Less(le5))
	assert.True(t, lt5.Less(le5))
	assert.False(t, le5.Less(lt5))
	assert.False(t, le5.Less(le5))
	assert.True(t, le5.Less(Infinity))
}

func TestBoundAdd(t *testing.T) {
	assert.Equal(t, Bound{Value: 2}, Bound{Value: 5}.Add(Bound{Value: -3}))
	assert.Equal(t, Bound{Value: 8, Strict: true}, Bound{Value: 5, Strict: true}.Add(Bound{Value: 3}))
	assert.Equal(t, Infinity, Bound{Value: 5}.Add(Infinity))
	assert.Equal(t, Infinity, Infinity.Add(Zero))
}

func TestBoundString(t *testing.T) {
	assert.Equal(t, "<=5", Bound{Value: 5}.String())
	assert.Equal(t, "<-3", Bound{Value: -3, Strict: true}.String())
	assert.Equal(t, "<inf", Infinity.String())
}
