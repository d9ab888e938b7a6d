package stt

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/mrsingh-rishi/voice-capture/types"
	"github.com/pkg/errors"
)

// DefaultStreamURL is the realtime recognition websocket.
const DefaultStreamURL = "wss://vop.baidu.com/realtime_asr"

const writeTimeout = 5 * time.Second

// StreamConfig contains streaming session parameters.
type StreamConfig struct {
	Endpoint         string
	AppID            int
	AppKey           string
	CUID             string
	DevPID           int
	SampleRate       int
	HandshakeTimeout time.Duration
}

// StreamingClient is one realtime recognition session over a websocket.
type StreamingClient struct {
	Connection *gws.Conn
	SN         string
	Endpoint   string

	logger *log.Logger
	events chan<- types.TranscriptionResult

	connMu    sync.Mutex
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	err       error
}

// DialStream connects, sends the START frame and begins reading server frames.
// Recognition events are written to events until Done is closed.
func DialStream(ctx context.Context, config StreamConfig, events chan<- types.TranscriptionResult, logger *log.Logger) (*StreamingClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	if events == nil {
		return nil, errors.New("events channel is required")
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultStreamURL
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 5 * time.Second
	}

	u, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	sn := uuid.NewString()
	q := u.Query()
	q.Set("sn", sn)
	u.RawQuery = q.Encode()

	dialer := gws.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		logger.Printf("❌ Recognition stream dial error: %v", err)
		return nil, errors.Wrap(ErrTransport, err.Error())
	}

	client := &StreamingClient{
		Connection: conn,
		SN:         sn,
		Endpoint:   config.Endpoint,
		logger:     logger,
		events:     events,
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}

	start := startFrame{
		Type: "START",
		Data: startData{
			AppID:   config.AppID,
			AppKey:  config.AppKey,
			DevPID:  config.DevPID,
			CUID:    config.CUID,
			Format:  "pcm",
			Sample:  config.SampleRate,
			Channel: 1,
		},
	}
	if err := client.writeJSON(start); err != nil {
		conn.Close()
		logger.Printf("❌ Recognition stream START failed: %v", err)
		return nil, errors.Wrap(ErrTransport, err.Error())
	}

	logger.Printf("✅ Connected to recognition stream (sn=%s)", sn)
	go client.listenForResponses()
	return client, nil
}

func (c *StreamingClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.Connection.WriteJSON(v)
}

// SendAudio sends one PCM16 frame as a binary message.
func (c *StreamingClient) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	select {
	case <-c.closing:
		return errors.Wrap(ErrTransport, "stream closed")
	default:
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.Connection.WriteMessage(gws.BinaryMessage, pcm); err != nil {
		return errors.Wrap(ErrTransport, err.Error())
	}
	return nil
}

// Finish tells the server no more audio follows.
func (c *StreamingClient) Finish() error {
	select {
	case <-c.closing:
		return errors.Wrap(ErrTransport, "stream closed")
	default:
	}
	if err := c.writeJSON(controlFrame{Type: "FINISH"}); err != nil {
		return errors.Wrap(ErrTransport, err.Error())
	}
	return nil
}

// Done is closed once the read loop has exited and no more events will be sent.
func (c *StreamingClient) Done() <-chan struct{} {
	return c.done
}

// Err returns the transport error that ended the stream, or nil when it was
// closed by either side on purpose. Valid after Done is closed.
func (c *StreamingClient) Err() error {
	<-c.done
	return c.err
}

// Close shuts the websocket. It is safe to call more than once.
func (c *StreamingClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		_ = c.Connection.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, "Closing connection"),
			time.Now().Add(time.Second))
		err = c.Connection.Close()
	})
	return err
}

// listenForResponses reads server frames until the connection ends.
func (c *StreamingClient) listenForResponses() {
	defer close(c.done)

	for {
		_, message, err := c.Connection.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
			default:
				if !gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
					c.err = errors.Wrap(ErrTransport, err.Error())
					c.logger.Printf("❌ Recognition stream read error: %v", err)
				}
				c.Close()
			}
			return
		}

		msg, err := DecodeServerMessage(message)
		if err != nil {
			c.logger.Printf("Error parsing recognition message: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *StreamingClient) handle(msg ServerMessage) {
	switch m := msg.(type) {
	case MidText:
		c.events <- types.Partial(m.Result)
	case FinText:
		if m.Failed() {
			if m.ErrNo != NoSpeechErrNo {
				c.logger.Printf("Final result failed (%d): %s", m.ErrNo, m.ErrMsg)
			}
			c.events <- types.FailedFinal(m.Result, m.ErrNo, m.ErrMsg)
			return
		}
		c.events <- types.Final(m.Result)
	case Finish:
		c.logger.Println("Recognition stream finished by server")
		c.Close()
	case ServiceError:
		if m.ErrNo != NoSpeechErrNo {
			c.logger.Printf("Recognition stream error %d on %s: %s", m.ErrNo, m.Type, m.ErrMsg)
		}
	case Heartbeat:
	}
}
