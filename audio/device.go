package audio

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/mrsingh-rishi/voice-capture/model"
	"github.com/pkg/errors"
)

// DefaultFrameSize is the number of samples per delivered frame.
const DefaultFrameSize = 4096

// Constraints describe the microphone stream requested from a backend.
// Backends that cannot honour the processing flags ignore them and say so in their logs.
type Constraints struct {
	Channels         int
	FrameSize        int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints asks for a mono stream with all voice processing enabled.
func DefaultConstraints() Constraints {
	return Constraints{
		Channels:         1,
		FrameSize:        DefaultFrameSize,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Stream is an open microphone stream.
type Stream interface {
	// SampleRate is the native rate of the device, fixed for the stream's lifetime.
	SampleRate() int
	// Stop halts the device and releases it.
	Stop() error
}

// Device is a microphone backend.
//
//go:generate mockgen -destination=../mocks/mock_device.go -package=mocks github.com/mrsingh-rishi/voice-capture/audio Device,Stream
type Device interface {
	// Available reports whether the host has any capture device at all.
	Available() bool
	// Open acquires the microphone and starts calling onFrame with raw samples.
	// The slice passed to onFrame may be reused by the backend after the call returns.
	Open(ctx context.Context, constraints Constraints, onFrame func(samples []float32)) (Stream, error)
}

// Graph owns one open microphone stream and fans frames out to the session.
type Graph struct {
	device      Device
	constraints Constraints
	logger      *log.Logger

	mu         sync.Mutex
	stream     Stream
	sampleRate int
	closed     atomic.Bool
}

// NewGraph creates a graph over the given device.
func NewGraph(device Device, constraints Constraints, logger *log.Logger) *Graph {
	if logger == nil {
		logger = log.Default()
	}
	if constraints.Channels == 0 {
		constraints.Channels = 1
	}
	if constraints.FrameSize == 0 {
		constraints.FrameSize = DefaultFrameSize
	}
	return &Graph{device: device, constraints: constraints, logger: logger}
}

// Open acquires the microphone. Each captured frame is copied once into an
// immutable chunk and handed to onFrame in capture order.
func (g *Graph) Open(ctx context.Context, onFrame func(model.AudioChunk)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stream != nil {
		return errors.Wrap(ErrDeviceError, "graph already open")
	}
	if g.device == nil || !g.device.Available() {
		return ErrDeviceNotFound
	}

	g.closed.Store(false)
	stream, err := g.device.Open(ctx, g.constraints, func(samples []float32) {
		if g.closed.Load() || len(samples) == 0 {
			return
		}
		chunk := make(model.AudioChunk, len(samples))
		copy(chunk, samples)
		onFrame(chunk)
	})
	if err != nil {
		g.closed.Store(true)
		return classify(err)
	}
	if stream.SampleRate() <= 0 {
		_ = stream.Stop()
		g.closed.Store(true)
		return errors.Wrapf(ErrDeviceError, "device reported sample rate %d", stream.SampleRate())
	}

	g.stream = stream
	g.sampleRate = stream.SampleRate()
	g.logger.Printf("🎙️ Microphone open at %d Hz (frame %d samples)", g.sampleRate, g.constraints.FrameSize)
	return nil
}

// SampleRate returns the native rate recorded at Open.
func (g *Graph) SampleRate() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sampleRate
}

// IsOpen reports whether a device stream is held.
func (g *Graph) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream != nil
}

// Close stops frame delivery and releases the device. Calling it on a closed
// graph is a no-op.
func (g *Graph) Close() error {
	g.closed.Store(true)

	g.mu.Lock()
	stream := g.stream
	g.stream = nil
	g.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		g.logger.Printf("❌ Failed to stop microphone: %v", err)
		return errors.Wrap(err, "stop microphone")
	}
	g.logger.Println("Microphone released")
	return nil
}
