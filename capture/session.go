package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrsingh-rishi/voice-capture/audio"
	"github.com/mrsingh-rishi/voice-capture/model"
	"github.com/mrsingh-rishi/voice-capture/queue"
	"github.com/mrsingh-rishi/voice-capture/stt"
	"github.com/mrsingh-rishi/voice-capture/types"
	"github.com/mrsingh-rishi/voice-capture/workers"
)

// frameBacklog bounds how many frames may wait for the sender while the
// streaming handshake is still in progress.
const frameBacklog = 512

// Stats describes one capture session.
type Stats struct {
	SessionID     string        `json:"session_id"`
	Mode          string        `json:"mode"`
	Demoted       bool          `json:"demoted"`
	SampleRate    int           `json:"sample_rate"`
	Frames        int64         `json:"frames"`
	BytesStreamed int64         `json:"bytes_streamed"`
	Partials      int64         `json:"partials"`
	Finals        int64         `json:"finals"`
	Delivered     int64         `json:"delivered"`
	Duration      time.Duration `json:"duration"`
}

// session holds everything owned by one start/stop cycle.
type session struct {
	id        string
	startedAt time.Time
	onResult  func(string)
	devPID    int

	ctx    context.Context
	cancel context.CancelFunc

	graph      *audio.Graph
	sampleRate int
	chunks     *queue.Queue[model.AudioChunk]

	frameMu      sync.Mutex
	framesClosed bool
	frames       chan model.AudioChunk
	pumpDone     chan struct{}

	events chan types.TranscriptionResult
	worker *workers.TranscriptionWorker
	stream *stt.StreamingClient
	mode   atomic.Int32
	timer  *time.Timer

	frameCount    atomic.Int64
	bytesStreamed atomic.Int64
	partials      atomic.Int64
	finals        atomic.Int64
	delivered     atomic.Int64
	demoted       atomic.Bool
	// inCallback counts onResult invocations currently running.
	inCallback atomic.Int32
}

func newSession(id string, onResult func(string)) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        id,
		startedAt: time.Now(),
		onResult:  onResult,
		ctx:       ctx,
		cancel:    cancel,
		chunks:    queue.New[model.AudioChunk](),
		frames:    make(chan model.AudioChunk, frameBacklog),
		pumpDone:  make(chan struct{}),
		events:    make(chan types.TranscriptionResult, 64),
	}
	s.mode.Store(int32(model.Fallback))
	return s
}

func (s *session) Mode() model.TransportMode {
	return model.TransportMode(s.mode.Load())
}

// onFrame runs on the device callback. Every frame is retained for a possible
// one-shot submission and queued for the sender in capture order.
func (s *session) onFrame(chunk model.AudioChunk) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.framesClosed {
		return
	}
	s.chunks.Enqueue(chunk)
	s.frameCount.Add(1)
	select {
	case s.frames <- chunk:
	case <-s.ctx.Done():
	}
}

// closeFrames stops accepting frames. The sender drains what is queued.
func (s *session) closeFrames() {
	s.frameMu.Lock()
	if !s.framesClosed {
		s.framesClosed = true
		close(s.frames)
	}
	s.frameMu.Unlock()
}

func (s *session) stats() Stats {
	return Stats{
		SessionID:     s.id,
		Mode:          s.Mode().String(),
		Demoted:       s.demoted.Load(),
		SampleRate:    s.sampleRate,
		Frames:        s.frameCount.Load(),
		BytesStreamed: s.bytesStreamed.Load(),
		Partials:      s.partials.Load(),
		Finals:        s.finals.Load(),
		Delivered:     s.delivered.Load(),
		Duration:      time.Since(s.startedAt),
	}
}
