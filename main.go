package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/mrsingh-rishi/voice-capture/audio"
	"github.com/mrsingh-rishi/voice-capture/audio/miniaudio"
	"github.com/mrsingh-rishi/voice-capture/audio/portaudio"
	"github.com/mrsingh-rishi/voice-capture/auth"
	"github.com/mrsingh-rishi/voice-capture/capture"
	"github.com/mrsingh-rishi/voice-capture/config"
	"github.com/mrsingh-rishi/voice-capture/metrics"
	"github.com/mrsingh-rishi/voice-capture/output"
	"github.com/mrsingh-rishi/voice-capture/stt"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

type startRequest struct {
	Language string `json:"language"`
}

type statusResponse struct {
	State      string        `json:"state"`
	Listening  bool          `json:"listening"`
	Microphone bool          `json:"microphone"`
	Clients    int           `json:"clients"`
	Stats      capture.Stats `json:"stats"`
}

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	addr := pflag.String("addr", "", "listen address, overrides HTTP_ADDR")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *addr != "" {
		cfg.HTTP.Address = *addr
	}
	logger := log.New(os.Stderr, cfg.Logging.Prefix, cfg.Logging.Flags)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	var device audio.Device
	switch cfg.Audio.Backend {
	case "miniaudio":
		device = miniaudio.NewClient(logger)
	default:
		device = portaudio.NewClient(cfg.Audio.Device, logger)
	}

	tokens, err := auth.NewTokenProvider(auth.Config{
		Endpoint:     cfg.ASR.TokenURL,
		ClientID:     cfg.ASR.APIKey,
		ClientSecret: cfg.ASR.SecretKey,
		TTL:          cfg.ASR.GetTokenTTL(),
	}, nil, logger)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	tokens.OnRefresh = m.TokenRefreshed

	oneShot := stt.NewOneShotClient(stt.OneShotConfig{
		Endpoint: cfg.ASR.OneShotURL,
		CUID:     cfg.ASR.CUID,
	}, nil, logger)

	constraints := audio.DefaultConstraints()
	constraints.FrameSize = cfg.Audio.FrameSize
	input, err := capture.NewVoiceInput(capture.Config{
		AppID:       cfg.ASR.AppID,
		AppKey:      cfg.ASR.APIKey,
		CUID:        cfg.ASR.CUID,
		DevPID:      cfg.ASR.GetDevPID(),
		StreamURL:   cfg.ASR.StreamURL,
		MaxDuration: cfg.Voice.GetMaxDuration(),
		FinishGrace: cfg.Voice.GetFinishGrace(),
		MinFallback: cfg.Voice.GetMinFallback(),
		DebugWAVDir: cfg.Voice.DebugWAVDir,
		Constraints: constraints,
	}, device, tokens, oneShot, m, logger)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	events := make(chan output.Event, 64)
	transcripts, err := output.NewTranscriptOutput(events, logger)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	transcripts.Start()

	publish := func(event output.Event) {
		select {
		case events <- event:
		default:
			logger.Printf("Transcript queue full, dropping %s event", event.Event)
		}
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// POST /voice/start opens the microphone and begins recognition
	app.Post("/voice/start", func(c *fiber.Ctx) error {
		var req startRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
			}
		}
		if req.Language != "" {
			input.SetLanguage(req.Language)
		}

		err := input.Start(c.UserContext(), func(text string) {
			logger.Printf("📝 Transcript: %s", text)
			publish(output.Event{Event: output.EventTranscript, SessionID: input.Stats().SessionID, Text: text})
		})
		if err != nil {
			status := fiber.StatusServiceUnavailable
			message := audio.UserMessage(err)
			if errors.Is(err, auth.ErrAuth) {
				status = fiber.StatusBadGateway
				message = "Speech recognition is not available: the access token could not be obtained."
			}
			return c.Status(status).JSON(fiber.Map{"error": message})
		}
		publish(output.Event{Event: output.EventStatus, SessionID: input.Stats().SessionID, State: input.State().String()})
		return c.JSON(fiber.Map{"state": input.State().String(), "session": input.Stats().SessionID})
	})

	// POST /voice/stop ends the session and waits for the last transcript
	app.Post("/voice/stop", func(c *fiber.Ctx) error {
		err := input.Stop(c.UserContext())
		stats := input.Stats()
		publish(output.Event{Event: output.EventStatus, SessionID: stats.SessionID, State: input.State().String()})
		if err != nil {
			var rerr *stt.RecognitionError
			message := err.Error()
			if errors.As(err, &rerr) {
				message = rerr.Message()
			}
			publish(output.Event{Event: output.EventError, SessionID: stats.SessionID, Error: message})
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": message, "stats": stats})
		}
		return c.JSON(fiber.Map{"state": input.State().String(), "stats": stats})
	})

	app.Get("/voice/status", func(c *fiber.Ctx) error {
		return c.JSON(statusResponse{
			State:      input.State().String(),
			Listening:  input.IsListening(),
			Microphone: input.HasMicrophoneSupport(),
			Clients:    transcripts.Clients(),
			Stats:      input.Stats(),
		})
	})

	// Middleware to require WebSocket upgrade on /voice/transcripts
	app.Use("/voice/transcripts", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/voice/transcripts", websocket.New(func(ws *websocket.Conn) {
		transcripts.Add(ws)
		defer transcripts.Remove(ws)

		// Clients only listen; reading detects the disconnect.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Printf("Transcript client read error: %v", err)
				}
				return
			}
		}
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		fmt.Printf("Fiber server listening on %s\n", cfg.HTTP.Address)
		if err := app.Listen(cfg.HTTP.Address); err != nil {
			logger.Printf("❌ Server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Println("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := input.Stop(stopCtx); err != nil {
		logger.Printf("❌ Final session ended with error: %v", err)
	}
	transcripts.Stop()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Printf("❌ Shutdown error: %v", err)
	}
}
