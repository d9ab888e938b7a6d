package stt

import (
	"fmt"

	"github.com/pkg/errors"
)

// NoSpeechErrNo is the streaming error code for a segment without speech. It is
// expected during pauses and never logged as a failure.
const NoSpeechErrNo = -3005

var (
	// ErrRecognition matches every *RecognitionError.
	ErrRecognition = errors.New("recognition failed")
	// ErrTransport marks streaming connection failures. It never reaches the caller
	// of a capture session; the session falls back instead.
	ErrTransport = errors.New("streaming transport failed")
)

// ErrorClass groups service error codes by what the user can do about them.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassBadParams
	ClassPoorAudio
	ClassUnauthorized
	ClassRateLimited
	ClassAudioTooLong
	ClassUnsupportedFormat
	ClassServiceFailure
)

func (c ErrorClass) String() string {
	switch c {
	case ClassBadParams:
		return "bad parameters"
	case ClassPoorAudio:
		return "poor audio quality"
	case ClassUnauthorized:
		return "authorization failed"
	case ClassRateLimited:
		return "rate limit exceeded"
	case ClassAudioTooLong:
		return "audio too long"
	case ClassUnsupportedFormat:
		return "unsupported audio format"
	case ClassServiceFailure:
		return "service failure"
	default:
		return "unknown"
	}
}

type codeInfo struct {
	class   ErrorClass
	message string
}

var codeTable = map[int]codeInfo{
	3300: {ClassBadParams, "The recognition request had invalid parameters."},
	3301: {ClassPoorAudio, "The audio quality was too poor to recognise. Speak clearly and try again."},
	3302: {ClassUnauthorized, "Speech recognition authorization failed. Check the API credentials."},
	3303: {ClassServiceFailure, "The speech recognition service had an internal error. Try again later."},
	3304: {ClassRateLimited, "Too many recognition requests per second. Wait a moment and try again."},
	3305: {ClassRateLimited, "The daily speech recognition quota is used up."},
	3307: {ClassServiceFailure, "The speech recognition engine failed. Try again later."},
	3308: {ClassAudioTooLong, "The recording is too long. Keep it under 60 seconds."},
	3309: {ClassPoorAudio, "The audio data could not be processed."},
	3310: {ClassAudioTooLong, "The recording is too large to upload."},
	3311: {ClassUnsupportedFormat, "The audio sample rate is not supported."},
	3312: {ClassUnsupportedFormat, "The audio format is not supported."},
}

// RecognitionError is a non-zero service code from a one-shot submission.
type RecognitionError struct {
	Code       int
	ServiceMsg string
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed (%d %s): %s", e.Code, e.Class(), e.ServiceMsg)
}

// Is lets errors.Is(err, ErrRecognition) match.
func (e *RecognitionError) Is(target error) bool {
	return target == ErrRecognition
}

// Class maps the code onto its error class.
func (e *RecognitionError) Class() ErrorClass {
	if info, ok := codeTable[e.Code]; ok {
		return info.class
	}
	return ClassUnknown
}

// Message is the human-readable text for the code.
func (e *RecognitionError) Message() string {
	if info, ok := codeTable[e.Code]; ok {
		return info.message
	}
	if e.ServiceMsg != "" {
		return fmt.Sprintf("Speech recognition failed: %s (code %d).", e.ServiceMsg, e.Code)
	}
	return fmt.Sprintf("Speech recognition failed (code %d).", e.Code)
}
