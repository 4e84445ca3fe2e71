package audio

// Resample converts mono 16-bit PCM from fromRate to toRate using linear
// interpolation. If the rates match (or either is non-positive) the input is
// returned unchanged. Good enough for speech; callers that need band-limited
// quality should low-pass upstream.
func Resample(pcm []int16, fromRate, toRate int) []int16 {
	if fromRate <= 0 || toRate <= 0 || fromRate == toRate || len(pcm) == 0 {
		return pcm
	}

	dstLen := int(int64(len(pcm)) * int64(toRate) / int64(fromRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(fromRate) / float64(toRate)

	for i := range out {
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
