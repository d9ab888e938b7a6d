package audio

import "github.com/pkg/errors"

var (
	// ErrPermissionDenied is returned when the user or OS refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceNotFound is returned when no input device exists.
	ErrDeviceNotFound = errors.New("no microphone found")
	// ErrDeviceError covers every other acquisition failure.
	ErrDeviceError = errors.New("microphone error")
)

// UserMessage turns a capture error into a message a user can act on.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access denied. Enable microphone permission in your system or browser settings and try again."
	case errors.Is(err, ErrDeviceNotFound):
		return "No microphone detected. Connect a microphone and try again."
	case errors.Is(err, ErrDeviceError):
		return "The microphone could not be started. Check that no other application is using it."
	default:
		return "Voice input failed: " + err.Error()
	}
}

// classify makes sure every error leaving the capture layer belongs to the taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrDeviceError) {
		return err
	}
	return errors.Wrap(ErrDeviceError, err.Error())
}
