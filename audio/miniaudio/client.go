package miniaudio

import (
	"context"
	"encoding/binary"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/mrsingh-rishi/voice-capture/audio"
	"github.com/pkg/errors"
)

// Client opens microphone streams through miniaudio.
type Client struct {
	logger *log.Logger
}

func NewClient(logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{logger: logger}
}

func (c *Client) initContext() (*malgo.AllocatedContext, error) {
	return malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		c.logger.Println("malgo:", strings.TrimSpace(message))
	})
}

// Available reports whether miniaudio can enumerate a capture device.
func (c *Client) Available() bool {
	audioCtx, err := c.initContext()
	if err != nil {
		return false
	}
	defer func() {
		_ = audioCtx.Uninit()
		audioCtx.Free()
	}()

	devices, err := audioCtx.Devices(malgo.Capture)
	return err == nil && len(devices) > 0
}

// Open starts a mono float32 capture device at its native sample rate.
func (c *Client) Open(ctx context.Context, constraints audio.Constraints, onFrame func([]float32)) (audio.Stream, error) {
	audioCtx, err := c.initContext()
	if err != nil {
		return nil, errors.Wrap(audio.ErrDeviceError, err.Error())
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	// Zero asks miniaudio for the device's native rate.
	cfg.SampleRate = 0
	cfg.PeriodSizeInFrames = uint32(constraints.FrameSize)
	cfg.Alsa.NoMMap = 1

	samples := make([]float32, constraints.FrameSize)
	dev, err := malgo.InitDevice(audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount)
			if len(pInput) < n*4 || n == 0 {
				return
			}
			if cap(samples) < n {
				samples = make([]float32, n)
			}
			samples = samples[:n]
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(pInput[i*4:]))
			}
			onFrame(samples)
		},
	})
	if err != nil {
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, mapError(err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = audioCtx.Uninit()
		audioCtx.Free()
		return nil, mapError(err)
	}

	c.logger.Printf("✅ miniaudio capture started at %d Hz", dev.SampleRate())
	return &stream{ctx: audioCtx, dev: dev, rate: int(dev.SampleRate())}, nil
}

type stream struct {
	ctx  *malgo.AllocatedContext
	dev  *malgo.Device
	rate int
	once sync.Once
	err  error
}

func (s *stream) SampleRate() int { return s.rate }

func (s *stream) Stop() error {
	s.once.Do(func() {
		s.err = s.dev.Stop()
		s.dev.Uninit()
		_ = s.ctx.Uninit()
		s.ctx.Free()
	})
	return s.err
}

func mapError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return errors.Wrap(audio.ErrPermissionDenied, err.Error())
	case strings.Contains(msg, "no device"), strings.Contains(msg, "does not exist"):
		return errors.Wrap(audio.ErrDeviceNotFound, err.Error())
	default:
		return errors.Wrap(audio.ErrDeviceError, err.Error())
	}
}
