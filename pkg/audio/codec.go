// Package audio implements the codec and resampling bridge between the 8kHz
// companded telephony leg, the 16kHz recognition input, and the synthesis
// backend's native output rate. Everything in this package is a pure function
// of its inputs.
package audio

import "math"

// Standard sample rates used across the pipeline.
const (
	TelephonyRate   = 8000
	RecognitionRate = 16000
)

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// DecodeMuLaw converts 8-bit G.711 μ-law samples to linear 16-bit PCM.
// A zero-length input yields a zero-length output.
func DecodeMuLaw(companded []byte) []int16 {
	pcm := make([]int16, len(companded))
	for i, b := range companded {
		u := ^b
		sign := u & 0x80
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := ((int32(mantissa) << 3) + muLawBias) << exponent
		sample -= muLawBias
		if sign != 0 {
			sample = -sample
		}
		pcm[i] = int16(sample)
	}
	return pcm
}

// EncodeMuLaw converts linear 16-bit PCM to 8-bit G.711 μ-law.
func EncodeMuLaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		sample := int32(s)
		var sign byte
		if sample < 0 {
			sample = -sample
			sign = 0x80
		}
		if sample > muLawClip {
			sample = muLawClip
		}
		sample += muLawBias

		exponent := byte(7)
		for mask := int32(0x4000); exponent > 0 && sample&mask == 0; mask >>= 1 {
			exponent--
		}
		mantissa := byte((sample >> (exponent + 3)) & 0x0F)
		out[i] = ^(sign | (exponent << 4) | mantissa)
	}
	return out
}

// PCMToBytes serializes int16 PCM samples to little-endian bytes.
func PCMToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToPCM deserializes little-endian bytes to int16 PCM samples.
// A trailing odd byte is dropped.
func BytesToPCM(data []byte) []int16 {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return pcm
}

// ClampFloat converts float samples in [-1, 1] to int16 PCM. NaN and Inf
// values (which can arise from upstream float conversion) become silence;
// out-of-range values are clamped rather than wrapped.
func ClampFloat(samples []float64) []int16 {
	pcm := make([]int16, len(samples))
	for i, f := range samples {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			pcm[i] = 0
			continue
		}
		v := f * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		pcm[i] = int16(v)
	}
	return pcm
}
