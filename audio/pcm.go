package audio

import "encoding/binary"

// FloatToInt16 clamps s to [-1, 1] and scales it to a signed 16-bit sample.
// Negative values scale by 32768 and non-negative values by 32767.
func FloatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Int16ToFloat is the inverse scaling of FloatToInt16.
func Int16ToFloat(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768
	}
	return float32(v) / 32767
}

// EncodePCM16 encodes samples as little-endian signed 16-bit PCM.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToInt16(s)))
	}
	return out
}

// DecodePCM16 decodes little-endian signed 16-bit PCM. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = Int16ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// EncodeFrame resamples one native-rate frame to TargetSampleRate and encodes it
// as PCM16, the payload of a streaming binary message.
func EncodeFrame(samples []float32, nativeRate int) []byte {
	return EncodePCM16(Resample(samples, nativeRate))
}
