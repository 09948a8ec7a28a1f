package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const DefaultDownloadTimeout = 30 * time.Second

var (
	// ErrDownload reports that the file could not be resolved or fetched.
	ErrDownload = errors.New("media download failed")
	ErrTooLarge = errors.New("media exceeds size limit")
)

// FileResolver turns an opaque platform file reference into a download URL.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// File is a downloaded attachment living in a temporary location. It is only
// valid inside the callback passed to Transfer.WithFile.
type File struct {
	FileID string
	Path   string
	Size   int64
}

func (f *File) ReadAll() ([]byte, error) {
	return os.ReadFile(f.Path)
}

type Transfer struct {
	resolver FileResolver
	client   *http.Client
	tempDir  string
	maxBytes int64
	logger   *zap.Logger
}

type Options struct {
	Timeout time.Duration
	TempDir string
	// MaxBytes caps the downloaded size; zero disables the cap.
	MaxBytes int64
	Client   *http.Client
}

func NewTransfer(resolver FileResolver, opts Options, logger *zap.Logger) *Transfer {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultDownloadTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Transfer{
		resolver: resolver,
		client:   client,
		tempDir:  opts.TempDir,
		maxBytes: opts.MaxBytes,
		logger:   logger,
	}
}

// WithFile downloads fileID into a temporary file, runs fn with it and removes
// the file on every exit path. fn is not called when the download fails. The
// extension of name, if any, is kept on the temporary file.
func (t *Transfer) WithFile(ctx context.Context, fileID, name string, fn func(*File) error) error {
	file, err := t.download(ctx, fileID, filepath.Ext(name))
	if file != nil {
		defer t.remove(file.Path)
	}
	if err != nil {
		return err
	}
	return fn(file)
}

func (t *Transfer) download(ctx context.Context, fileID, ext string) (*File, error) {
	url, err := t.resolver.FileURL(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve file %s: %w", ErrDownload, fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrDownload, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}
	if t.maxBytes > 0 && resp.ContentLength > t.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	tmp, err := os.CreateTemp(t.tempDir, "media-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	file := &File{FileID: fileID, Path: tmp.Name()}

	var body io.Reader = resp.Body
	if t.maxBytes > 0 {
		body = io.LimitReader(resp.Body, t.maxBytes+1)
	}
	written, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return file, fmt.Errorf("%w: write temp file: %w", ErrDownload, copyErr)
	}
	if closeErr != nil {
		return file, fmt.Errorf("close temp file: %w", closeErr)
	}
	if t.maxBytes > 0 && written > t.maxBytes {
		return file, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, t.maxBytes)
	}
	file.Size = written

	t.logger.Debug("Downloaded file",
		zap.String("file_id", fileID),
		zap.String("path", file.Path),
		zap.Int64("size", written))
	return file, nil
}

func (t *Transfer) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		t.logger.Warn("Failed to remove temporary file", zap.String("path", path), zap.Error(err))
	}
}
