package model

// AudioChunk is one frame of raw float samples captured at the device's native rate.
// Chunks are never mutated after capture.
type AudioChunk []float32

// TransportMode is the recognition strategy a session runs with.
type TransportMode int

const (
	// Streaming sends audio over a persistent websocket while capturing.
	Streaming TransportMode = iota
	// Fallback buffers audio and submits it once at stop.
	Fallback
)

func (m TransportMode) String() string {
	switch m {
	case Streaming:
		return "streaming"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// SessionState is the lifecycle state of a capture session.
type SessionState int

const (
	Idle SessionState = iota
	Starting
	Listening
	Stopping
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
