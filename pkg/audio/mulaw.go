package audio

// G.711 μ-law codec. Telephony media streams carry 8-bit μ-law at
// 8 kHz; everything downstream of the leg works in PCM16.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^uint8(i)
		sign := u & 0x80
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := int32(mantissa)<<(exponent+3) + (int32(mulawBias) << exponent) - mulawBias
		if sign != 0 {
			sample = -sample
		}
		mulawDecodeTable[i] = int16(sample)
	}
}

// DecodeMulaw converts μ-law bytes to PCM16 samples.
func DecodeMulaw(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = mulawDecodeTable[b]
	}
	return samples
}

// EncodeMulaw converts PCM16 samples to μ-law bytes.
func EncodeMulaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = encodeMulawSample(s)
	}
	return out
}

func encodeMulawSample(sample int16) byte {
	var sign byte
	v := int32(sample)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > mulawClip {
		v = mulawClip
	}
	v += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && v&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((v >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMulawFrame decodes μ-law payload bytes into an inbound Frame.
func DecodeMulawFrame(payload []byte, seq uint64) Frame {
	f := Frame{
		Seq:       seq,
		Direction: Inbound,
		Samples:   DecodeMulaw(payload),
	}
	return f
}
