package workers

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/mrsingh-rishi/voice-capture/types"
	"github.com/pkg/errors"
)

// TranscriptionWorker is the single consumer of a session's recognition events.
// It tracks the current segment and turns finals into callback invocations.
type TranscriptionWorker struct {
	ctx                       context.Context
	cancel                    context.CancelFunc
	TranscriptionInputChannel <-chan types.TranscriptionResult

	// OnEvent observes every event before it is handled.
	OnEvent func(types.TranscriptionResult)
	// OnDelivered runs just before a transcript is handed to the callback.
	OnDelivered func()

	deliver      func(string)
	logger       *log.Logger
	segment      string
	flushOnClose atomic.Bool
	started      atomic.Bool
	done         chan struct{}
}

func NewTranscriptionWorker(transcriptionInputChannel <-chan types.TranscriptionResult, deliver func(string), logger *log.Logger) (*TranscriptionWorker, error) {
	if transcriptionInputChannel == nil {
		return nil, errors.New("transcription input channel is required")
	}
	if deliver == nil {
		return nil, errors.New("result callback is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	tw := &TranscriptionWorker{
		ctx:                       ctx,
		cancel:                    cancel,
		TranscriptionInputChannel: transcriptionInputChannel,
		deliver:                   deliver,
		logger:                    logger,
		done:                      make(chan struct{}),
	}
	tw.flushOnClose.Store(true)
	return tw, nil
}

// SetFlushOnClose controls whether a pending partial is delivered when the
// input channel is closed. It defaults to true.
func (tw *TranscriptionWorker) SetFlushOnClose(flush bool) {
	tw.flushOnClose.Store(flush)
}

func (tw *TranscriptionWorker) Start() {
	if !tw.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(tw.done)
		for {
			select {
			case <-tw.ctx.Done():
				return
			case transcription, ok := <-tw.TranscriptionInputChannel:
				if !ok {
					if tw.flushOnClose.Load() {
						tw.flushPending()
					}
					return
				}
				tw.handle(transcription)
			}
		}
	}()
}

func (tw *TranscriptionWorker) handle(transcription types.TranscriptionResult) {
	if tw.OnEvent != nil {
		tw.OnEvent(transcription)
	}

	if !transcription.Final {
		tw.segment = transcription.Transcription
		return
	}

	if transcription.Failed || transcription.Transcription == "" {
		tw.substitutePartial(transcription)
		return
	}

	tw.logger.Printf("Got Final Transcription: %s", transcription.Transcription)
	tw.segment = ""
	tw.emit(transcription.Transcription)
}

// substitutePartial delivers the pending partial in place of a final that
// failed or came back empty. Without a partial nothing is delivered.
func (tw *TranscriptionWorker) substitutePartial(transcription types.TranscriptionResult) {
	pending := tw.segment
	tw.segment = ""
	if pending == "" {
		return
	}
	if transcription.Failed {
		tw.logger.Printf("Final failed (%d), delivering partial instead: %s", transcription.ErrNo, pending)
	}
	tw.emit(pending)
}

// flushPending delivers the current partial once, if any.
func (tw *TranscriptionWorker) flushPending() {
	if tw.segment == "" {
		return
	}
	pending := tw.segment
	tw.segment = ""
	tw.logger.Printf("Flushing pending partial: %s", pending)
	tw.emit(pending)
}

func (tw *TranscriptionWorker) emit(text string) {
	if tw.OnDelivered != nil {
		tw.OnDelivered()
	}
	tw.deliver(text)
}

// Wait blocks until the worker has drained its input and exited.
func (tw *TranscriptionWorker) Wait(ctx context.Context) error {
	select {
	case <-tw.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop abandons any queued events and waits for the loop to exit.
func (tw *TranscriptionWorker) Stop() {
	tw.cancel()
	if tw.started.Load() {
		<-tw.done
	}
}
