package audio

// FloatToPCM16 converts normalized float samples to 16-bit PCM, clamping
// values outside [-1, 1].
func FloatToPCM16(samples []float32) []int16 {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(s * 32767)
	}
	return pcm
}

// PCM16ToFloat converts 16-bit PCM samples to normalized floats.
func PCM16ToFloat(pcm []int16) []float32 {
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768
	}
	return samples
}
