package output

import (
	"context"
	"log"
	"sync"

	"github.com/pkg/errors"
)

// Event types pushed to browser clients.
const (
	EventTranscript = "transcript"
	EventStatus     = "status"
	EventError      = "error"
)

// Event is one message for connected clients.
type Event struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text,omitempty"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Conn is the part of a websocket connection the broadcaster writes to.
// *github.com/gofiber/websocket/v2.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// TranscriptOutput fans events out to every registered websocket client.
type TranscriptOutput struct {
	ctx          context.Context
	cancel       context.CancelFunc
	EventChannel <-chan Event
	logger       *log.Logger

	mu      sync.Mutex
	clients map[Conn]struct{}
	done    chan struct{}
}

func NewTranscriptOutput(eventChannel <-chan Event, logger *log.Logger) (*TranscriptOutput, error) {
	if eventChannel == nil {
		return nil, errors.New("event channel is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TranscriptOutput{
		ctx:          ctx,
		cancel:       cancel,
		EventChannel: eventChannel,
		logger:       logger,
		clients:      make(map[Conn]struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Add registers a client. Events published afterwards are written to it.
func (o *TranscriptOutput) Add(conn Conn) {
	o.mu.Lock()
	o.clients[conn] = struct{}{}
	n := len(o.clients)
	o.mu.Unlock()
	o.logger.Printf("Transcript client connected (%d total)", n)
}

// Remove unregisters a client without closing it.
func (o *TranscriptOutput) Remove(conn Conn) {
	o.mu.Lock()
	delete(o.clients, conn)
	o.mu.Unlock()
}

// Clients returns the number of registered clients.
func (o *TranscriptOutput) Clients() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.clients)
}

func (o *TranscriptOutput) Start() {
	go func() {
		defer close(o.done)
		for {
			select {
			case <-o.ctx.Done():
				return
			case event, ok := <-o.EventChannel:
				if !ok {
					return
				}
				o.broadcast(event)
			}
		}
	}()
}

func (o *TranscriptOutput) broadcast(event Event) {
	o.mu.Lock()
	clients := make([]Conn, 0, len(o.clients))
	for c := range o.clients {
		clients = append(clients, c)
	}
	o.mu.Unlock()

	for _, c := range clients {
		if err := c.WriteJSON(event); err != nil {
			o.logger.Printf("Transcript client write error, dropping client: %v", err)
			o.Remove(c)
			c.Close()
		}
	}
}

// Stop ends the loop and closes every client.
func (o *TranscriptOutput) Stop() {
	o.cancel()
	<-o.done

	o.mu.Lock()
	clients := o.clients
	o.clients = make(map[Conn]struct{})
	o.mu.Unlock()
	for c := range clients {
		c.Close()
	}
}
