package stt

import (
	"testing"

	"github.com/mrsingh-rishi/voice-capture/stt/stttest"
)

func TestDecodeServerMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ServerMessage
	}{
		{"partial", stttest.Frame("MID_TEXT", "hello", 0, ""), MidText{Result: "hello"}},
		{"final", stttest.Frame("FIN_TEXT", "hello world", 0, ""), FinText{Result: "hello world"}},
		{"failed final", stttest.Frame("FIN_TEXT", "", -3101, "timeout"), FinText{ErrNo: -3101, ErrMsg: "timeout"}},
		{"finish", `{"type":"FINISH"}`, Finish{}},
		{"heartbeat", `{"type":"HEARTBEAT"}`, Heartbeat{}},
		{"partial error", stttest.Frame("MID_TEXT", "", -3005, "no speech"), ServiceError{Type: "MID_TEXT", ErrNo: -3005, ErrMsg: "no speech"}},
		{"untyped error", `{"type":"","err_no":-3002,"err_msg":"bad start"}`, ServiceError{ErrNo: -3002, ErrMsg: "bad start"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeServerMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestDecodeServerMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeServerMessage([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
	if _, err := DecodeServerMessage([]byte(`{"type":"SOMETHING"}`)); err == nil {
		t.Error("Expected error for unknown type without error code")
	}
}

func TestDevPID(t *testing.T) {
	tests := map[string]int{
		"zh":      DevPIDMandarin,
		"zh-CN":   DevPIDMandarin,
		"":        DevPIDMandarin,
		"en":      DevPIDEnglish,
		"en_US":   DevPIDEnglish,
		"yue":     DevPIDCantonese,
		"zh-HK":   DevPIDCantonese,
		"sichuan": DevPIDSichuanese,
		"fr":      DevPIDMandarin,
	}
	for lang, want := range tests {
		if got := DevPID(lang); got != want {
			t.Errorf("DevPID(%q) = %d, want %d", lang, got, want)
		}
	}
}
