package field

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHalfRoundTripExact(t *testing.T) {
	// Values exactly representable in binary16 survive unchanged.
	exact := []float32{0, 1, -1, 0.5, -0.25, 2, 1024, -2048, 65504, -65504, 0.000061035156}
	src := append([]float32(nil), exact...)
	enc := make([]uint16, len(src))
	dec := make([]float32, len(src))

	EncodeHalf(enc, src)
	DecodeHalf(dec, enc)
	assert.Equal(t, src, dec)
}

func TestHalfRoundTripTolerance(t *testing.T) {
	vals := []float32{0.1, -0.3, 3.14159, 123.456, -999.9, 1e-3, 7.7e2}
	enc := make([]uint16, len(vals))
	dec := make([]float32, len(vals))
	EncodeHalf(enc, vals)
	DecodeHalf(dec, enc)
	for i, v := range vals {
		rel := math.Abs(float64(dec[i]-v)) / math.Abs(float64(v))
		assert.Less(t, rel, 1.0/1024, "value %v decoded as %v", v, dec[i])
	}
}

func TestHalfSpecials(t *testing.T) {
	src := []float32{
		float32(math.Inf(1)),
		float32(math.Inf(-1)),
		float32(math.NaN()),
		1e8,  // overflows half range
		-1e8, // overflows negative
		1e-9, // underflows to zero
	}
	enc := make([]uint16, len(src))
	dec := make([]float32, len(src))
	EncodeHalf(enc, src)
	DecodeHalf(dec, enc)

	assert.True(t, math.IsInf(float64(dec[0]), 1))
	assert.True(t, math.IsInf(float64(dec[1]), -1))
	assert.True(t, math.IsNaN(float64(dec[2])))
	assert.True(t, math.IsInf(float64(dec[3]), 1))
	assert.True(t, math.IsInf(float64(dec[4]), -1))
	assert.Zero(t, dec[5])
}

func TestHalfNegativeZeroKeepsSign(t *testing.T) {
	enc := make([]uint16, 1)
	dec := make([]float32, 1)
	EncodeHalf(enc, []float32{float32(math.Copysign(0, -1))})
	DecodeHalf(dec, enc)
	assert.True(t, math.Signbit(float64(dec[0])))
}
