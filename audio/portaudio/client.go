package portaudio

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/mrsingh-rishi/voice-capture/audio"
	"github.com/pkg/errors"
)

// Client opens microphone streams through PortAudio.
type Client struct {
	deviceName string
	logger     *log.Logger
}

// NewClient returns a PortAudio backend. An empty deviceName selects the default
// input device.
func NewClient(deviceName string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{deviceName: deviceName, logger: logger}
}

// Available reports whether PortAudio can see an input device.
func (c *Client) Available() bool {
	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()

	_, err := c.inputDevice()
	return err == nil
}

func (c *Client) inputDevice() (*portaudio.DeviceInfo, error) {
	if c.deviceName == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil || dev == nil {
			return nil, errors.Wrap(audio.ErrDeviceNotFound, "no default input device")
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, errors.Wrap(audio.ErrDeviceError, err.Error())
	}
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && dev.Name == c.deviceName {
			return dev, nil
		}
	}
	return nil, errors.Wrapf(audio.ErrDeviceNotFound, "input device %q", c.deviceName)
}

// Open starts a mono float32 stream at the device's default sample rate.
func (c *Client) Open(ctx context.Context, constraints audio.Constraints, onFrame func([]float32)) (audio.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.Wrap(audio.ErrDeviceError, err.Error())
	}

	dev, err := c.inputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	if constraints.EchoCancellation || constraints.NoiseSuppression || constraints.AutoGainControl {
		c.logger.Println("PortAudio has no voice processing, capturing raw input")
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.FramesPerBuffer = constraints.FrameSize

	s, err := portaudio.OpenStream(params, func(in []float32) {
		onFrame(in)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, mapError(err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		portaudio.Terminate()
		return nil, mapError(err)
	}

	c.logger.Printf("✅ PortAudio capture started on %q", dev.Name)
	return &stream{s: s, rate: int(params.SampleRate)}, nil
}

type stream struct {
	s    *portaudio.Stream
	rate int
	once sync.Once
	err  error
}

func (s *stream) SampleRate() int { return s.rate }

func (s *stream) Stop() error {
	s.once.Do(func() {
		if err := s.s.Stop(); err != nil {
			s.err = err
		}
		if err := s.s.Close(); err != nil && s.err == nil {
			s.err = err
		}
		portaudio.Terminate()
	})
	return s.err
}

func mapError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "not permitted"):
		return errors.Wrap(audio.ErrPermissionDenied, err.Error())
	case strings.Contains(msg, "invalid device"), strings.Contains(msg, "no device"):
		return errors.Wrap(audio.ErrDeviceNotFound, err.Error())
	default:
		return errors.Wrap(audio.ErrDeviceError, err.Error())
	}
}
