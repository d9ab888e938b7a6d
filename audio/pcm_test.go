package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestFloatToInt16Scaling(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16383},
		{-0.5, -16384},
	}
	for _, tt := range tests {
		if got := FloatToInt16(tt.in); got != tt.want {
			t.Errorf("FloatToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	const lsb = 1.0 / 32767
	samples := make([]float32, 0, 2001)
	for i := -1000; i <= 1000; i++ {
		samples = append(samples, float32(i)/1000)
	}
	decoded := DecodePCM16(EncodePCM16(samples))
	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, s := range samples {
		if diff := math.Abs(float64(decoded[i] - s)); diff > lsb {
			t.Errorf("sample %f decoded to %f (diff %g > 1 LSB)", s, decoded[i], diff)
		}
	}
}

func TestEncodePCM16LittleEndian(t *testing.T) {
	pcm := EncodePCM16([]float32{1, -1})
	if len(pcm) != 4 {
		t.Fatalf("Expected 4 bytes, got %d", len(pcm))
	}
	if v := int16(binary.LittleEndian.Uint16(pcm[2:])); v != -32768 {
		t.Errorf("Expected -32768, got %d", v)
	}
}

func TestEncodeFrame(t *testing.T) {
	frame := make([]float32, 4800)
	if got := len(EncodeFrame(frame, 48000)); got != 3200 {
		t.Errorf("Expected 1600 samples (3200 bytes), got %d bytes", got)
	}
}

func TestWriteWAV(t *testing.T) {
	var buf bytes.Buffer
	pcm := EncodePCM16([]float32{0, 0.5, -0.5})
	if err := WriteWAV(&buf, pcm, TargetSampleRate); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	data := buf.Bytes()
	if len(data) != 44+len(pcm) {
		t.Fatalf("Expected %d bytes, got %d", 44+len(pcm), len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Error("Expected canonical RIFF/WAVE/data markers")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != TargetSampleRate {
		t.Errorf("Expected sample rate %d, got %d", TargetSampleRate, rate)
	}
	if err := WriteWAV(&buf, pcm, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}
