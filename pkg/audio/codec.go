// Package audio converts between the telephony wire format (8 kHz mu-law)
// and the linear PCM formats realtime AI endpoints speak. All functions are
// pure and safe for concurrent use across sessions.
package audio

import (
	"fmt"

	"github.com/voxbridge/voxbridge/pkg/core"
)

const (
	// TelephonyRate is the sample rate of the provider media stream.
	TelephonyRate = 8000
	// AIInputRate is the PCM rate expected by realtime endpoints that do not
	// accept mu-law directly.
	AIInputRate = 16000
)

// DecodeInbound expands 8 kHz mu-law caller audio to 16-bit linear PCM and
// resamples it to 16 kHz. The result is little-endian and contains
// round(len(mulaw) * 2) samples. Zero-length input yields zero-length output.
func DecodeInbound(mulaw []byte) ([]byte, error) {
	if len(mulaw) == 0 {
		return []byte{}, nil
	}
	pcm8k := MuLawDecode(mulaw)
	pcm16k := Resample(pcm8k, TelephonyRate, AIInputRate)
	return SamplesToBytes(pcm16k), nil
}

// EncodeOutbound resamples 16-bit little-endian linear PCM at sourceRate down
// to 8 kHz and mu-law compresses it. The result contains
// round(samples * 8000/sourceRate) bytes. Zero-length input yields zero-length
// output; an odd-length buffer is a codec error.
func EncodeOutbound(pcm []byte, sourceRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return []byte{}, nil
	}
	if len(pcm)%2 != 0 {
		return nil, core.NewCodecError(fmt.Sprintf("odd-length pcm buffer (%d bytes)", len(pcm)))
	}
	if sourceRate <= 0 {
		return nil, core.NewCodecError(fmt.Sprintf("invalid source sample rate %d", sourceRate))
	}
	samples := BytesToSamples(pcm)
	pcm8k := Resample(samples, sourceRate, TelephonyRate)
	return MuLawEncode(pcm8k), nil
}

// SamplesToBytes packs int16 samples as little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// BytesToSamples unpacks little-endian bytes as int16 samples. The buffer
// length must be even.
func BytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}
