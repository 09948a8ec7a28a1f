package bot

import (
	"errors"
	"net"

	"github.com/xaenox/chat-gateway/internal/completion"
	"github.com/xaenox/chat-gateway/internal/media"
	"github.com/xaenox/chat-gateway/internal/storage"
)

// Kind classifies the failure behind a fallback reply for logs and events.
type Kind string

const (
	KindTransport        Kind = "transport"
	KindTimeout          Kind = "timeout"
	KindEmptyCompletion  Kind = "empty_completion"
	KindDownload         Kind = "download"
	KindTooLarge         Kind = "too_large"
	KindUnsupported      Kind = "unsupported"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal"
)

func KindOf(err error) Kind {
	var reqErr *completion.RequestError
	var netErr net.Error

	switch {
	case err == nil:
		return ""
	case errors.Is(err, storage.ErrUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, media.ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, media.ErrDownload):
		return KindDownload
	case errors.Is(err, completion.ErrEmptyCompletion):
		return KindEmptyCompletion
	case completion.IsTimeout(err):
		return KindTimeout
	case errors.As(err, &reqErr), errors.As(err, &netErr):
		return KindTransport
	default:
		return KindInternal
	}
}
