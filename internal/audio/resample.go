package audio

import "encoding/binary"

// Resample time-compresses or stretches s16le mono PCM by the given rate
// using linear interpolation, so a 1.5 rate plays in two thirds of the
// original time. Rates at or very near 1.0 return the input unchanged.
//
// This is intentionally naive resampling: it shifts pitch along with tempo,
// which is fine for the sped-up "assistant voice" effect it exists for.
func Resample(pcm []byte, rate float64) []byte {
	if rate <= 0 {
		rate = 1.0
	}
	if rate > 0.999 && rate < 1.001 {
		return pcm
	}

	in := len(pcm) / BytesPerSample
	if in < 2 {
		return pcm
	}

	out := int(float64(in) / rate)
	if out < 1 {
		out = 1
	}

	dst := make([]byte, out*BytesPerSample)
	for i := 0; i < out; i++ {
		pos := float64(i) * rate
		j := int(pos)
		if j >= in-1 {
			j = in - 2
		}
		frac := pos - float64(j)

		a := int16(binary.LittleEndian.Uint16(pcm[j*BytesPerSample:]))
		b := int16(binary.LittleEndian.Uint16(pcm[(j+1)*BytesPerSample:]))
		v := float64(a) + (float64(b)-float64(a))*frac

		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(int16(v)))
	}
	return dst
}
