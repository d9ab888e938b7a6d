package audio_test

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/mrsingh-rishi/voice-capture/audio"
	"github.com/mrsingh-rishi/voice-capture/mocks"
	"github.com/mrsingh-rishi/voice-capture/model"
	"github.com/pkg/errors"
)

var quiet = log.New(io.Discard, "", 0)

func TestGraphOpenDeliversCopies(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)
	stream := mocks.NewMockStream(ctrl)

	var push func([]float32)
	device.EXPECT().Available().Return(true)
	device.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c audio.Constraints, onFrame func([]float32)) (audio.Stream, error) {
			if c.Channels != 1 || !c.EchoCancellation || !c.NoiseSuppression || !c.AutoGainControl {
				t.Errorf("unexpected constraints %+v", c)
			}
			push = onFrame
			return stream, nil
		})
	stream.EXPECT().SampleRate().Return(44100).AnyTimes()
	stream.EXPECT().Stop().Return(nil).Times(1)

	g := audio.NewGraph(device, audio.DefaultConstraints(), quiet)
	var got []model.AudioChunk
	if err := g.Open(context.Background(), func(c model.AudioChunk) { got = append(got, c) }); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if g.SampleRate() != 44100 {
		t.Errorf("Expected 44100, got %d", g.SampleRate())
	}

	buf := []float32{0.1, 0.2}
	push(buf)
	buf[0] = 0.9
	push(buf)
	if len(got) != 2 || got[0][0] != 0.1 || got[1][0] != 0.9 {
		t.Errorf("Expected independent copies, got %v", got)
	}

	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	push(buf)
	if len(got) != 2 {
		t.Error("Expected frames after Close to be dropped")
	}
	if err := g.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
	if g.IsOpen() {
		t.Error("Expected graph to be closed")
	}
}

func TestGraphOpenErrors(t *testing.T) {
	tests := []struct {
		name      string
		available bool
		openErr   error
		want      error
	}{
		{"no device", false, nil, audio.ErrDeviceNotFound},
		{"permission", true, errors.Wrap(audio.ErrPermissionDenied, "denied by OS"), audio.ErrPermissionDenied},
		{"busy", true, errors.New("device busy"), audio.ErrDeviceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			device := mocks.NewMockDevice(ctrl)
			device.EXPECT().Available().Return(tt.available)
			if tt.available {
				device.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tt.openErr)
			}

			g := audio.NewGraph(device, audio.DefaultConstraints(), quiet)
			err := g.Open(context.Background(), func(model.AudioChunk) {})
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if audio.UserMessage(err) == "" {
				t.Error("Expected a user-facing message")
			}
		})
	}
}
