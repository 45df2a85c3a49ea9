package audio

// G.711 mu-law companding. 8-bit logarithmic samples as used on telephony
// media streams.

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// MuLawEncodeSample compresses one 16-bit linear PCM sample to 8-bit mu-law.
func MuLawEncodeSample(s int16) byte {
	v := int32(s)
	var sign byte
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exponent := 7
	for mask := int32(0x4000); exponent > 0 && v&mask == 0; exponent-- {
		mask >>= 1
	}
	mantissa := byte((v >> uint(exponent+3)) & 0x0F)
	return ^(sign | byte(exponent)<<4 | mantissa)
}

// MuLawDecodeSample expands one 8-bit mu-law sample to 16-bit linear PCM.
func MuLawDecodeSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	v := ((int32(mantissa) << 3) + muLawBias) << uint(exponent)
	v -= muLawBias
	if sign != 0 {
		v = -v
	}
	return int16(v)
}

// MuLawEncode compresses 16-bit linear PCM samples to mu-law bytes.
func MuLawEncode(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = MuLawEncodeSample(s)
	}
	return out
}

// MuLawDecode expands mu-law bytes to 16-bit linear PCM samples.
func MuLawDecode(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = MuLawDecodeSample(b)
	}
	return out
}
