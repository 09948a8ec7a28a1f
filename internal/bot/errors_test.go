package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xaenox/chat-gateway/internal/completion"
	"github.com/xaenox/chat-gateway/internal/media"
	"github.com/xaenox/chat-gateway/internal/storage"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"store unavailable", fmt.Errorf("append: %w", storage.ErrUnavailable), KindStoreUnavailable},
		{"too large", fmt.Errorf("fetch: %w", media.ErrTooLarge), KindTooLarge},
		{"download", fmt.Errorf("fetch: %w", media.ErrDownload), KindDownload},
		{"empty completion", completion.ErrEmptyCompletion, KindEmptyCompletion},
		{"deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), KindTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutError{}}, KindTimeout},
		{"non-2xx", &completion.RequestError{StatusCode: 502, Err: errors.New("bad gateway")}, KindTransport},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindTransport},
		{"anything else", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
