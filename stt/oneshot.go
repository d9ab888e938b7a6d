package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DefaultOneShotURL is the short-audio recognition endpoint.
const DefaultOneShotURL = "https://vop.baidu.com/server_api"

// OneShotConfig contains one-shot recognition configuration.
type OneShotConfig struct {
	Endpoint   string
	CUID       string
	SampleRate int
	Timeout    time.Duration
}

// OneShotClient submits a complete PCM16 buffer in a single request.
type OneShotClient struct {
	config     OneShotConfig
	httpClient *http.Client
	logger     *log.Logger
}

type oneShotRequest struct {
	Format  string `json:"format"`
	Rate    int    `json:"rate"`
	Channel int    `json:"channel"`
	CUID    string `json:"cuid"`
	Token   string `json:"token"`
	Speech  string `json:"speech"`
	Len     int    `json:"len"`
	DevPID  int    `json:"dev_pid"`
}

type oneShotResponse struct {
	ErrNo  int      `json:"err_no"`
	ErrMsg string   `json:"err_msg"`
	Result []string `json:"result"`
}

func NewOneShotClient(config OneShotConfig, httpClient *http.Client, logger *log.Logger) *OneShotClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultOneShotURL
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &OneShotClient{config: config, httpClient: httpClient, logger: logger}
}

// Recognize submits pcm and returns the top transcription candidate. An empty
// candidate list yields an empty string and no error.
func (c *OneShotClient) Recognize(ctx context.Context, token string, pcm []byte, devPID int) (string, error) {
	payload := oneShotRequest{
		Format:  "pcm",
		Rate:    c.config.SampleRate,
		Channel: 1,
		CUID:    c.config.CUID,
		Token:   token,
		Speech:  base64.StdEncoding.EncodeToString(pcm),
		Len:     len(pcm),
		DevPID:  devPID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal recognition request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build recognition request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "recognition request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read recognition response")
	}

	var parsed oneShotResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrapf(err, "decode recognition response (status %s)", resp.Status)
	}
	if parsed.ErrNo != 0 {
		return "", &RecognitionError{Code: parsed.ErrNo, ServiceMsg: parsed.ErrMsg}
	}

	c.logger.Printf("One-shot recognition of %d bytes took %s", len(pcm), time.Since(start).Round(time.Millisecond))
	if len(parsed.Result) == 0 {
		return "", nil
	}
	return parsed.Result[0], nil
}
