package audio

// Resample converts samples from one rate to another by linear interpolation.
// The output length is len(samples)*to/from, mirroring the upstream engine's
// expectation that duration is preserved.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 || from <= 0 || to <= 0 {
		return samples
	}

	outLen := len(samples) * to / from
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float32, outLen)
	if outLen == 1 {
		out[0] = samples[0]
		return out
	}

	step := float64(len(samples)-1) / float64(outLen-1)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out
}

// Downmix averages interleaved channels into a mono signal. Input that is
// already mono is returned unchanged.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 || len(samples) == 0 {
		return samples
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Prepare normalizes an utterance for the transcription engine: mono
// downmix followed by resampling to targetRate.
func Prepare(u Utterance, targetRate int) []float32 {
	samples := Downmix(u.Samples, u.Channels)
	if u.SampleRate != targetRate {
		samples = Resample(samples, u.SampleRate, targetRate)
	}
	return samples
}
