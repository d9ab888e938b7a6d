package stt

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Server message type tags.
const (
	typeMidText   = "MID_TEXT"
	typeFinText   = "FIN_TEXT"
	typeFinish    = "FINISH"
	typeHeartbeat = "HEARTBEAT"
)

// ServerMessage is one decoded frame from the streaming recognition server.
// It is one of MidText, FinText, Finish, ServiceError or Heartbeat.
type ServerMessage interface {
	serverMessage()
}

// MidText is a partial transcript that may still be revised.
type MidText struct {
	Result string
}

// FinText is the final transcript of a segment. A non-zero ErrNo means the
// server could not finalise the segment.
type FinText struct {
	Result string
	ErrNo  int
	ErrMsg string
}

// Finish acknowledges the client's FINISH frame; the server is done.
type Finish struct{}

// ServiceError is an error report outside of a final result.
type ServiceError struct {
	Type   string
	ErrNo  int
	ErrMsg string
}

// Heartbeat keeps the connection alive and carries nothing.
type Heartbeat struct{}

func (MidText) serverMessage()      {}
func (FinText) serverMessage()      {}
func (Finish) serverMessage()       {}
func (ServiceError) serverMessage() {}
func (Heartbeat) serverMessage()    {}

// Failed reports whether the final result carries an error.
func (f FinText) Failed() bool { return f.ErrNo != 0 }

type wireMessage struct {
	Type   string `json:"type"`
	Result string `json:"result"`
	ErrNo  int    `json:"err_no"`
	ErrMsg string `json:"err_msg"`
}

// DecodeServerMessage parses a JSON server frame into its variant.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(err, "decode server message")
	}

	switch w.Type {
	case typeMidText:
		if w.ErrNo != 0 {
			return ServiceError{Type: w.Type, ErrNo: w.ErrNo, ErrMsg: w.ErrMsg}, nil
		}
		return MidText{Result: w.Result}, nil
	case typeFinText:
		return FinText{Result: w.Result, ErrNo: w.ErrNo, ErrMsg: w.ErrMsg}, nil
	case typeFinish:
		return Finish{}, nil
	case typeHeartbeat:
		return Heartbeat{}, nil
	}

	if w.ErrNo != 0 {
		return ServiceError{Type: w.Type, ErrNo: w.ErrNo, ErrMsg: w.ErrMsg}, nil
	}
	return nil, errors.Errorf("unknown server message type %q", w.Type)
}

type startFrame struct {
	Type string    `json:"type"`
	Data startData `json:"data"`
}

type startData struct {
	AppID   int    `json:"appid"`
	AppKey  string `json:"appkey"`
	DevPID  int    `json:"dev_pid"`
	CUID    string `json:"cuid"`
	Format  string `json:"format"`
	Sample  int    `json:"sample"`
	Channel int    `json:"channel"`
}

type controlFrame struct {
	Type string `json:"type"`
}
