package audio

// FrameSamples returns the number of PCM samples in one frame of the given
// duration at the given sample rate.
func FrameSamples(sampleRate, frameMs int) int {
	return sampleRate * frameMs / 1000
}

// Packetize splits a continuous PCM stream into fixed-duration frames
// (typically 20ms for the telephony leg). It returns the complete frames plus
// any trailing samples that did not fill a whole frame; streaming callers
// carry the remainder into the next call.
func Packetize(pcm []int16, sampleRate, frameMs int) (frames [][]int16, remainder []int16) {
	size := FrameSamples(sampleRate, frameMs)
	if size <= 0 {
		return nil, pcm
	}

	for len(pcm) >= size {
		frames = append(frames, pcm[:size])
		pcm = pcm[size:]
	}
	return frames, pcm
}

// PadFrame extends pcm with silence up to the frame size for the given rate
// and duration. Used to flush a trailing partial frame at end of playback.
func PadFrame(pcm []int16, sampleRate, frameMs int) []int16 {
	size := FrameSamples(sampleRate, frameMs)
	if len(pcm) >= size {
		return pcm
	}
	padded := make([]int16, size)
	copy(padded, pcm)
	return padded
}
