// Package capture runs microphone capture sessions and turns them into
// transcripts, streaming when the recognition socket is reachable and falling
// back to a single one-shot submission when it is not.
package capture

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mrsingh-rishi/voice-capture/audio"
	"github.com/mrsingh-rishi/voice-capture/metrics"
	"github.com/mrsingh-rishi/voice-capture/model"
	"github.com/mrsingh-rishi/voice-capture/stt"
	"github.com/mrsingh-rishi/voice-capture/types"
	"github.com/mrsingh-rishi/voice-capture/workers"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Config contains capture session parameters.
type Config struct {
	AppID     int
	AppKey    string
	CUID      string
	DevPID    int
	StreamURL string

	MaxDuration time.Duration
	FinishGrace time.Duration
	MinFallback time.Duration
	// DebugWAVDir, when set, receives a WAV copy of every fallback submission.
	DebugWAVDir string

	Constraints audio.Constraints
}

// TokenSource hands out the bearer token for one-shot submissions.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Recognizer performs one-shot recognition of a PCM16 buffer.
type Recognizer interface {
	Recognize(ctx context.Context, token string, pcm []byte, devPID int) (string, error)
}

// DialFunc opens a streaming recognition session.
type DialFunc func(ctx context.Context, config stt.StreamConfig, events chan<- types.TranscriptionResult, logger *log.Logger) (*stt.StreamingClient, error)

// VoiceInput is the voice capture client. At most one session is active at a time.
type VoiceInput struct {
	config     Config
	device     audio.Device
	tokens     TokenSource
	recognizer Recognizer
	metrics    *metrics.Metrics
	logger     *log.Logger

	// Dial opens the streaming transport. It defaults to stt.DialStream.
	Dial DialFunc

	// opMu serialises Start and Stop.
	opMu sync.Mutex

	mu        sync.Mutex
	state     model.SessionState
	session   *session
	lastStats Stats
}

func NewVoiceInput(config Config, device audio.Device, tokens TokenSource, recognizer Recognizer, m *metrics.Metrics, logger *log.Logger) (*VoiceInput, error) {
	if device == nil {
		return nil, errors.New("audio device is required")
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if recognizer == nil {
		return nil, errors.New("recognizer is required")
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = 300 * time.Second
	}
	if config.FinishGrace <= 0 {
		config.FinishGrace = 500 * time.Millisecond
	}
	if config.MinFallback <= 0 {
		config.MinFallback = 500 * time.Millisecond
	}
	if config.DevPID == 0 {
		config.DevPID = stt.DevPIDMandarin
	}
	if config.CUID == "" {
		config.CUID = uuid.NewString()
	}
	if config.Constraints.Channels == 0 {
		config.Constraints = audio.DefaultConstraints()
	}
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = log.Default()
	}
	return &VoiceInput{
		config:     config,
		device:     device,
		tokens:     tokens,
		recognizer: recognizer,
		metrics:    m,
		logger:     logger,
		Dial:       stt.DialStream,
	}, nil
}

// SetLanguage selects the recognition language for sessions started afterwards.
func (v *VoiceInput) SetLanguage(language string) {
	v.mu.Lock()
	v.config.DevPID = stt.DevPID(language)
	v.mu.Unlock()
}

// HasMicrophoneSupport reports whether the host exposes any capture device.
func (v *VoiceInput) HasMicrophoneSupport() bool {
	return v.device.Available()
}

// IsListening reports whether a session is capturing audio.
func (v *VoiceInput) IsListening() bool {
	return v.State() == model.Listening
}

func (v *VoiceInput) State() model.SessionState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Stats returns the live statistics of the current session, or those of the
// last finished session when idle.
func (v *VoiceInput) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session != nil {
		return v.session.stats()
	}
	return v.lastStats
}

func (v *VoiceInput) setState(state model.SessionState, s *session) {
	v.mu.Lock()
	v.state = state
	v.session = s
	v.mu.Unlock()
}

// current returns the session being run, nil when idle.
func (v *VoiceInput) current() *session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.session
}

func (v *VoiceInput) devPID() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.config.DevPID
}

// Start acquires the microphone, the access token and, when reachable, a
// streaming connection. onResult receives every transcript of the session.
// Calling Start while a session is active does nothing.
func (v *VoiceInput) Start(ctx context.Context, onResult func(string)) error {
	if onResult == nil {
		return errors.New("result callback is required")
	}
	if s := v.current(); s != nil && s.inCallback.Load() > 0 {
		v.logger.Println("Voice input already active, ignoring start from result callback")
		return nil
	}
	v.opMu.Lock()
	defer v.opMu.Unlock()

	if v.State() != model.Idle {
		v.logger.Println("Voice input already active, ignoring start")
		return nil
	}

	s := newSession(uuid.NewString(), onResult)
	s.devPID = v.devPID()
	v.setState(model.Starting, nil)

	s.graph = audio.NewGraph(v.device, v.config.Constraints, v.logger)
	if err := s.graph.Open(ctx, s.onFrame); err != nil {
		v.abortStart(s, "device")
		v.logger.Printf("❌ Microphone unavailable: %v", err)
		return err
	}
	s.sampleRate = s.graph.SampleRate()

	if _, err := v.tokens.Token(ctx); err != nil {
		v.abortStart(s, "auth")
		v.logger.Printf("❌ Access token unavailable: %v", err)
		return errors.Wrap(err, "start voice input")
	}

	worker, err := workers.NewTranscriptionWorker(s.events, v.deliverer(s), v.logger)
	if err != nil {
		v.abortStart(s, "worker")
		return err
	}
	worker.OnEvent = func(ev types.TranscriptionResult) {
		if ev.Final {
			s.finals.Add(1)
			v.metrics.FinalResults.Inc()
			return
		}
		s.partials.Add(1)
		v.metrics.PartialResults.Inc()
	}
	worker.OnDelivered = func() { s.chunks.MarkProcessed() }
	s.worker = worker
	worker.Start()

	v.connect(ctx, s)
	go v.pump(s)

	s.timer = time.AfterFunc(v.config.MaxDuration, func() {
		v.logger.Printf("⏱️ Session %s reached %s, stopping", s.id, v.config.MaxDuration)
		if err := v.stopSession(context.Background(), s); err != nil {
			v.logger.Printf("❌ Timed out session ended with error: %v", err)
		}
	})

	v.setState(model.Listening, s)
	v.metrics.SessionsStarted.Inc()
	v.metrics.ActiveSessions.Inc()
	v.metrics.TransportSession.WithLabelValues(s.Mode().String()).Inc()
	v.logger.Printf("✅ Voice input started (session %s, %s, %d Hz)", s.id, s.Mode(), s.sampleRate)
	return nil
}

// abortStart releases what a failed Start acquired. No session survives it.
func (v *VoiceInput) abortStart(s *session, reason string) {
	s.cancel()
	if s.graph != nil {
		s.graph.Close()
	}
	v.metrics.SessionsFailed.WithLabelValues(reason).Inc()
	v.setState(model.Idle, nil)
}

// connect tries the streaming transport. Any failure leaves the session in
// fallback mode without reporting an error.
func (v *VoiceInput) connect(ctx context.Context, s *session) {
	start := time.Now()
	stream, err := v.Dial(ctx, stt.StreamConfig{
		Endpoint:   v.config.StreamURL,
		AppID:      v.config.AppID,
		AppKey:     v.config.AppKey,
		CUID:       v.config.CUID,
		DevPID:     s.devPID,
		SampleRate: audio.TargetSampleRate,
	}, s.events, v.logger)
	if err != nil {
		v.logger.Printf("Streaming unavailable, buffering for one-shot recognition: %v", err)
		return
	}
	v.metrics.StreamDialLatency.Observe(time.Since(start).Seconds())
	s.stream = stream
	s.mode.Store(int32(model.Streaming))

	go func() {
		<-stream.Done()
		if err := stream.Err(); err != nil {
			v.demote(s, err)
		}
	}()
}

// demote switches a streaming session to fallback once. Audio after the last
// delivered final is then submitted at stop.
func (v *VoiceInput) demote(s *session, cause error) {
	if !s.mode.CompareAndSwap(int32(model.Streaming), int32(model.Fallback)) {
		return
	}
	s.demoted.Store(true)
	v.metrics.StreamDemotions.Inc()
	v.logger.Printf("Streaming interrupted, falling back to one-shot recognition: %v", cause)
	if s.stream != nil {
		s.stream.Close()
	}
}

// pump encodes and sends captured frames in capture order while streaming.
func (v *VoiceInput) pump(s *session) {
	defer close(s.pumpDone)

	for chunk := range s.frames {
		v.metrics.FramesCaptured.Inc()
		if s.Mode() != model.Streaming {
			continue
		}
		pcm := audio.EncodeFrame(chunk, s.sampleRate)
		if err := s.stream.SendAudio(pcm); err != nil {
			v.demote(s, err)
			continue
		}
		s.bytesStreamed.Add(int64(len(pcm)))
		v.metrics.StreamBytesSent.Add(float64(len(pcm)))
	}
}

func (v *VoiceInput) deliverer(s *session) func(string) {
	return func(text string) {
		s.delivered.Add(1)
		v.metrics.DeliveredResults.Inc()
		s.inCallback.Add(1)
		defer s.inCallback.Add(-1)
		s.onResult(text)
	}
}

// Stop ends the active session. Without one it returns nil immediately.
// A *stt.RecognitionError from the one-shot submission is returned after
// every resource has been released.
//
// Called from inside onResult, Stop returns nil at once and the session is
// torn down in the background after the callback returns.
func (v *VoiceInput) Stop(ctx context.Context) error {
	if s := v.current(); s != nil && s.inCallback.Load() > 0 {
		go func() {
			if err := v.stopSession(context.WithoutCancel(ctx), s); err != nil {
				v.logger.Printf("❌ Session stopped from callback ended with error: %v", err)
			}
		}()
		return nil
	}
	return v.stopSession(ctx, nil)
}

// stopSession stops s, or whatever session is active when s is nil. It waits
// for an in-progress Start to finish first.
func (v *VoiceInput) stopSession(ctx context.Context, s *session) error {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if s == nil {
		s = v.session
	}
	if s == nil || v.session != s || v.state != model.Listening {
		v.mu.Unlock()
		return nil
	}
	v.state = model.Stopping
	v.mu.Unlock()

	s.timer.Stop()
	if err := s.graph.Close(); err != nil {
		v.logger.Printf("❌ Error releasing microphone: %v", err)
	}
	s.closeFrames()
	<-s.pumpDone

	v.finishStream(ctx, s)

	var pending []model.AudioChunk
	submit := false
	if s.Mode() == model.Fallback {
		pending = s.chunks.Unprocessed()
		samples := 0
		for _, c := range pending {
			samples += len(c)
		}
		seconds := audio.Duration(samples, s.sampleRate)
		submit = seconds >= v.config.MinFallback.Seconds()
		if !submit {
			v.metrics.OneShotSkipped.Inc()
			v.logger.Printf("Discarding %.2fs of audio, below %s minimum", seconds, v.config.MinFallback)
		}
	}
	if v.resubmitsPartial(s, submit) {
		s.worker.SetFlushOnClose(false)
	}

	close(s.events)
	if err := s.worker.Wait(ctx); err != nil {
		s.worker.Stop()
	}

	var err error
	if submit {
		err = v.recognizeFallback(ctx, s, pending)
	}

	s.cancel()
	stats := s.stats()
	v.mu.Lock()
	v.state = model.Idle
	v.session = nil
	v.lastStats = stats
	v.mu.Unlock()

	v.metrics.ActiveSessions.Dec()
	v.metrics.SessionDuration.Observe(stats.Duration.Seconds())
	v.logger.Printf("Voice input stopped (session %s, %s, %d frames, %d partials, %d finals, %d delivered, %s)",
		stats.SessionID, stats.Mode, stats.Frames, stats.Partials, stats.Finals, stats.Delivered, stats.Duration.Round(time.Millisecond))
	return err
}

// resubmitsPartial reports whether the one-shot submission of a demoted
// session covers the audio behind its pending partial. The partial is then
// superseded by the one-shot transcript and is not flushed.
func (v *VoiceInput) resubmitsPartial(s *session, submit bool) bool {
	return submit && s.demoted.Load()
}

// finishStream sends FINISH, waits up to the grace period for the server to
// close, then closes the socket. The read loop has exited when it returns.
func (v *VoiceInput) finishStream(ctx context.Context, s *session) {
	stream := s.stream
	if stream == nil {
		return
	}

	if s.Mode() == model.Streaming {
		if err := stream.Finish(); err != nil {
			v.demote(s, err)
		} else {
			grace := time.NewTimer(v.config.FinishGrace)
			select {
			case <-stream.Done():
			case <-grace.C:
			case <-ctx.Done():
			}
			grace.Stop()
		}
	}

	stream.Close()
	<-stream.Done()
	if err := stream.Err(); err != nil {
		v.demote(s, err)
	}
}

// recognizeFallback resamples and encodes the buffered audio and submits it once.
func (v *VoiceInput) recognizeFallback(ctx context.Context, s *session, chunks []model.AudioChunk) error {
	samples := audio.Resample(audio.Flatten(chunks), s.sampleRate)
	pcm := audio.EncodePCM16(samples)
	v.exportWAV(s, pcm)

	token, err := v.tokens.Token(ctx)
	if err != nil {
		v.metrics.OneShotFailures.WithLabelValues("auth").Inc()
		return errors.Wrap(err, "one-shot recognition")
	}

	v.metrics.OneShotRequests.Inc()
	start := time.Now()
	text, err := v.recognizer.Recognize(ctx, token, pcm, s.devPID)
	v.metrics.OneShotDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var rerr *stt.RecognitionError
		if errors.As(err, &rerr) {
			v.metrics.OneShotFailures.WithLabelValues(rerr.Class().String()).Inc()
			if rerr.Class() == stt.ClassUnauthorized {
				v.tokens.Invalidate()
			}
			v.logger.Printf("❌ One-shot recognition failed: %s", rerr.Message())
			return rerr
		}
		v.metrics.OneShotFailures.WithLabelValues("transport").Inc()
		v.logger.Printf("❌ One-shot recognition request failed: %v", err)
		return err
	}

	if text == "" {
		v.logger.Println("One-shot recognition returned no candidates")
		return nil
	}
	v.deliverer(s)(text)
	return nil
}

func (v *VoiceInput) exportWAV(s *session, pcm []byte) {
	if v.config.DebugWAVDir == "" {
		return
	}
	var buf bytes.Buffer
	if err := audio.WriteWAV(&buf, pcm, audio.TargetSampleRate); err != nil {
		v.logger.Printf("❌ WAV export failed: %v", err)
		return
	}
	path := filepath.Join(v.config.DebugWAVDir, s.id+".wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		v.logger.Printf("❌ WAV export failed: %v", err)
		return
	}
	v.logger.Printf("Fallback audio written to %s", path)
}
