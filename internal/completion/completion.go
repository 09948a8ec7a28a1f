package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrEmptyCompletion is returned when the model answered without any text.
var ErrEmptyCompletion = errors.New("completion: empty response")

// Completer generates text from a prompt, optionally with a binary attachment.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithAttachment(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)
}

// RequestError is a non-2xx answer from the completion service.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("completion request failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err was caused by the request running out of time.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
