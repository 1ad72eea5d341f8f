package model

import (
	"math"

	"github.com/chewxy/math32"
)

// Per-vertex sizes of the packed streams in the vertex buffer.
const (
	positionStride = 8 // 4 x unorm16: direction xyz mapped to [0, 1] and magnitude
	texCoordStride = 4 // 2 x float16
	normalStride   = 4 // 4 x unorm8: xyz mapped to [0, 1], w unused
)

// Attribute selects one of the model's vertex streams.
type Attribute int

const (
	// AttributePosition is bound with format r16g16b16a16_unorm. The shader reconstructs the model space position
	// as (v.xyz * 2 - 1) * v.w * QuantizationScale.
	AttributePosition Attribute = iota
	// AttributeTexCoord is bound with format r16g16_sfloat.
	AttributeTexCoord
	// AttributeNormal is bound with format r8g8b8a8_unorm; the normal is v.xyz * 2 - 1.
	AttributeNormal

	attributeCount
)

func (a Attribute) String() string {
	switch a {
	case AttributePosition:
		return "position"
	case AttributeTexCoord:
		return "texcoord"
	case AttributeNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// stride returns the per-vertex size of an attribute stream.
func (a Attribute) stride() uint64 {
	switch a {
	case AttributePosition:
		return positionStride
	case AttributeTexCoord:
		return texCoordStride
	default:
		return normalStride
	}
}

// PackPosition quantizes a position. Dividing by scale brings every component into [-1, 1]; the vector is then
// split into a direction normalized by its largest component and that component's magnitude, both stored as
// 16-bit unsigned normalized values.
//
// Parameters:
//   - p: the model space position
//   - scale: the model's quantization scale, see QuantizationScale
//
// Returns:
//   - [4]uint16: the packed direction and magnitude
func PackPosition(p [3]float32, scale float32) [4]uint16 {
	r, g, b := p[0]/scale, p[1]/scale, p[2]/scale
	m := math32.Max(math32.Max(minQuantum, math32.Abs(r)), math32.Max(math32.Abs(g), math32.Abs(b)))
	r, g, b = r/m, g/m, b/m
	return [4]uint16{unorm16(r*0.5 + 0.5), unorm16(g*0.5 + 0.5), unorm16(b*0.5 + 0.5), unorm16(m)}
}

// UnpackPosition reverses PackPosition the way the vertex shader does.
func UnpackPosition(q [4]uint16, scale float32) [3]float32 {
	m := float32(q[3]) / 65535
	var p [3]float32
	for i := range p {
		p[i] = (float32(q[i])/65535*2 - 1) * m * scale
	}
	return p
}

// PackNormal maps a unit normal to four unsigned normalized bytes. The fourth byte encodes zero.
func PackNormal(n [3]float32) [4]byte {
	return [4]byte{unorm8(n[0]*0.5 + 0.5), unorm8(n[1]*0.5 + 0.5), unorm8(n[2]*0.5 + 0.5), unorm8(0.5)}
}

// PackHalf2x16 packs two floats as IEEE half floats, the first in the low 16 bits.
func PackHalf2x16(v [2]float32) uint32 {
	return uint32(Float16(v[0])) | uint32(Float16(v[1]))<<16
}

// Float16 converts a float32 to the bits of the nearest IEEE 754 half float, rounding ties to even. Values too
// large for a half become infinity.
func Float16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	rawExp := int32(bits>>23) & 0xff
	mant := bits & 0x7fffff

	switch {
	case bits&0x7fffffff == 0:
		return sign
	case rawExp == 0xff:
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}

	exp := rawExp - 127 + 15
	if exp >= 0x1f {
		return sign | 0x7c00
	}
	if exp <= 0 {
		// Subnormal half: the value is mant * 2^-24 after restoring the implicit bit.
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		rem := mant & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && half&1 == 1) {
			half++
		}
		return sign | half
	}

	half := sign | uint16(exp)<<10 | uint16(mant>>13)
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		// A carry out of the mantissa correctly bumps the exponent.
		half++
	}
	return half
}

func unorm16(v float32) uint16 {
	return uint16(math32.Min(math32.Max(v, 0), 1)*65535 + 0.5)
}

func unorm8(v float32) uint8 {
	return uint8(math32.Min(math32.Max(v, 0), 1)*255 + 0.5)
}
