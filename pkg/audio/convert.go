package audio

import "math"

// StereoToMono averages each interleaved L/R pair to produce mono samples.
// Uses int32 arithmetic to prevent overflow and clamps to the int16 range.
func StereoToMono(stereo []int16) []int16 {
	frames := len(stereo) / 2
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		avg := (int32(stereo[i*2]) + int32(stereo[i*2+1])) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i] = int16(avg)
	}
	return out
}

// MonoToStereo duplicates each mono sample into an interleaved L/R pair.
func MonoToStereo(mono []int16) []int16 {
	out := make([]int16, len(mono)*2)
	for i, s := range mono {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// ResampleMono16 resamples mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	dstSamples := int(int64(len(pcm)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := pcm[srcIdx]
		s1 := s0
		if srcIdx+1 < len(pcm) {
			s1 = pcm[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// RMS returns the root-mean-square level of the samples, normalised to
// [0, 1] where 1 is a full-scale square wave. Returns 0 for an empty slice.
func RMS(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Peak returns the largest absolute sample value, normalised to [0, 1].
func Peak(samples []int16) float32 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s) / 32768.0)
		if v > peak {
			peak = v
		}
	}
	return float32(peak)
}
