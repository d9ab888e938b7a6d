// Package stttest provides an in-process fake of the token, one-shot and
// streaming recognition endpoints.
package stttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

// OneShotRequest is a decoded one-shot submission.
type OneShotRequest struct {
	Format  string `json:"format"`
	Rate    int    `json:"rate"`
	Channel int    `json:"channel"`
	CUID    string `json:"cuid"`
	Token   string `json:"token"`
	Speech  string `json:"speech"`
	Len     int    `json:"len"`
	DevPID  int    `json:"dev_pid"`
}

// StartData is the data block of a decoded START frame.
type StartData struct {
	AppID   int    `json:"appid"`
	AppKey  string `json:"appkey"`
	DevPID  int    `json:"dev_pid"`
	CUID    string `json:"cuid"`
	Format  string `json:"format"`
	Sample  int    `json:"sample"`
	Channel int    `json:"channel"`
}

// Server fakes the recognition service. Configure the exported behaviour
// fields before the first request.
type Server struct {
	*httptest.Server

	// RejectStream makes the websocket endpoint answer 503.
	RejectStream bool
	// AfterStart frames are sent once the START frame arrives.
	AfterStart []string
	// AfterFinish frames are sent once the FINISH frame arrives.
	AfterFinish []string
	// AfterAudio frames are sent once AfterAudioCount audio frames have arrived.
	AfterAudio      []string
	AfterAudioCount int
	// DropAfterAudio closes the connection abruptly after that many audio frames.
	DropAfterAudio int
	// OneShotResponse is returned by the one-shot endpoint.
	OneShotResponse map[string]interface{}
	// Token is returned by the token endpoint; empty answers with an error body.
	Token string

	mu            sync.Mutex
	starts        []StartData
	streamSNs     []string
	audioFrames   int
	audioBytes    int
	finishes      int
	activeStreams int
	oneShots      []OneShotRequest
	tokenRequests int
	upgrader      gws.Upgrader
}

// New starts a fake server that answers tokens with "test-token".
func New() *Server {
	s := &Server{
		Token:           "test-token",
		OneShotResponse: map[string]interface{}{"err_no": 0, "err_msg": "success.", "result": []string{"fallback text"}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/2.0/token", s.handleToken)
	mux.HandleFunc("/server_api", s.handleOneShot)
	mux.HandleFunc("/realtime_asr", s.handleStream)
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) TokenURL() string   { return s.URL + "/oauth/2.0/token" }
func (s *Server) OneShotURL() string { return s.URL + "/server_api" }
func (s *Server) StreamURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/realtime_asr"
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokenRequests++
	token := s.Token
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if token == "" {
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client", "error_description": "unknown client"})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"access_token": token, "expires_in": 2592000})
}

func (s *Server) handleOneShot(w http.ResponseWriter, r *http.Request) {
	var req OneShotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.oneShots = append(s.oneShots, req)
	resp := s.OneShotResponse
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RejectStream {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.activeStreams++
	s.streamSNs = append(s.streamSNs, r.URL.Query().Get("sn"))
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		s.activeStreams--
		s.mu.Unlock()
	}()

	send := func(frames []string) {
		for _, f := range frames {
			conn.WriteMessage(gws.TextMessage, []byte(f))
		}
	}

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == gws.BinaryMessage {
			s.mu.Lock()
			s.audioFrames++
			s.audioBytes += len(msg)
			reply := s.AfterAudioCount > 0 && s.audioFrames == s.AfterAudioCount
			drop := s.DropAfterAudio > 0 && s.audioFrames >= s.DropAfterAudio
			s.mu.Unlock()
			if reply {
				send(s.AfterAudio)
			}
			if drop {
				conn.UnderlyingConn().Close()
				return
			}
			continue
		}

		var frame struct {
			Type string    `json:"type"`
			Data StartData `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "START":
			s.mu.Lock()
			s.starts = append(s.starts, frame.Data)
			s.mu.Unlock()
			send(s.AfterStart)
		case "FINISH":
			s.mu.Lock()
			s.finishes++
			s.mu.Unlock()
			send(s.AfterFinish)
		}
	}
}

// Starts returns the START frames received so far.
func (s *Server) Starts() []StartData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StartData(nil), s.starts...)
}

// StreamSNs returns the sn query parameter of every stream connection.
func (s *Server) StreamSNs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.streamSNs...)
}

// AudioFrames returns the number of binary frames and their total size.
func (s *Server) AudioFrames() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioFrames, s.audioBytes
}

// Finishes returns how many FINISH frames arrived.
func (s *Server) Finishes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishes
}

// OneShots returns the one-shot submissions received so far.
func (s *Server) OneShots() []OneShotRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OneShotRequest(nil), s.oneShots...)
}

// TokenRequests returns how many token requests arrived.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// ActiveStreams returns the number of websocket connections still open.
func (s *Server) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeStreams
}

// WaitIdle waits until every stream connection has been closed.
func (s *Server) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.ActiveStreams() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.ActiveStreams() == 0
}

// Frame builds a JSON server frame.
func Frame(kind, result string, errNo int, errMsg string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"type":    kind,
		"result":  result,
		"err_no":  errNo,
		"err_msg": errMsg,
	})
	return string(b)
}
