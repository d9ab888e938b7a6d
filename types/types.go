package types

// TranscriptionResult is a recognition event travelling from the transport to the
// result worker.
type TranscriptionResult struct {
	Transcription string
	Final         bool
	// Failed marks a final result whose server payload reported an error.
	Failed bool
	ErrNo  int
	ErrMsg string
}

// Partial builds a non-final event.
func Partial(text string) TranscriptionResult {
	return TranscriptionResult{Transcription: text}
}

// Final builds a successful final event.
func Final(text string) TranscriptionResult {
	return TranscriptionResult{Transcription: text, Final: true}
}

// FailedFinal builds a final event that carried a service error.
func FailedFinal(text string, errNo int, errMsg string) TranscriptionResult {
	return TranscriptionResult{
		Transcription: text,
		Final:         true,
		Failed:        true,
		ErrNo:         errNo,
		ErrMsg:        errMsg,
	}
}
