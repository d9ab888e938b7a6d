package audio

import (
	"math"

	"github.com/mrsingh-rishi/voice-capture/model"
)

// TargetSampleRate is the rate the recognition service expects.
const TargetSampleRate = 16000

// Resample converts samples captured at fromRate to TargetSampleRate.
func Resample(samples []float32, fromRate int) []float32 {
	return ResampleTo(samples, fromRate, TargetSampleRate)
}

// ResampleTo linearly interpolates samples from fromRate to toRate. Output sample i
// reads source position i*fromRate/toRate and blends the two bracketing samples;
// at the tail, where no right neighbour exists, the nearest sample is used.
// Equal rates return an unmodified copy.
func ResampleTo(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	if len(samples) == 0 {
		return []float32{}
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(math.Round(float64(len(samples)) / ratio))
	out := make([]float32, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// Flatten concatenates chunks into one contiguous buffer.
func Flatten(chunks []model.AudioChunk) []float32 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// Duration returns the length in seconds of n samples at rate.
func Duration(n, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(n) / float64(rate)
}
