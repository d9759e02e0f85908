package field

import "math"

// EncodeHalf packs float32 samples into IEEE 754-2008 binary16 bit patterns
// for compact recording and transport. dst must hold at least len(src)
// entries.
func EncodeHalf(dst []uint16, src []float32) {
	for i, v := range src {
		dst[i] = halfBits(v)
	}
}

// DecodeHalf expands binary16 bit patterns back into float32 samples. dst
// must hold at least len(src) entries.
func DecodeHalf(dst []float32, src []uint16) {
	for i, v := range src {
		dst[i] = halfFloat(v)
	}
}

func halfBits(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int(bits>>23) & 0xff
	mant := bits & 0x7fffff

	if exp == 0xff {
		if mant == 0 {
			return sign | 0x7c00
		}
		nan := uint16(mant >> 13)
		if nan == 0 {
			nan = 1 // a NaN must not collapse to infinity
		}
		return sign | 0x7c00 | nan
	}

	e := exp - 127 + 15
	switch {
	case e >= 0x1f:
		return sign | 0x7c00
	case e <= 0:
		if e < -10 {
			return sign
		}
		m := (mant | 0x800000) >> uint(1-e)
		return sign | uint16((m+0x1000)>>13)
	}

	m := mant + 0x1000
	if m&0x800000 != 0 {
		m = 0
		e++
		if e >= 0x1f {
			return sign | 0x7c00
		}
	}
	return sign | uint16(e)<<10 | uint16(m>>13)
}

func halfFloat(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := int(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		e := -14
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | uint32(e+127)<<23 | mant<<13)
	case 0x1f:
		bits := sign | 0x7f800000 | mant<<13
		if mant != 0 {
			bits |= 1
		}
		return math.Float32frombits(bits)
	}
	return math.Float32frombits(sign | uint32(exp-15+127)<<23 | mant<<13)
}
