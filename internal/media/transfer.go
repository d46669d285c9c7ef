package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrUnsupportedFile is returned for messages that carry neither text nor a known file type.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrFileTooLarge is returned when the reported size exceeds the configured ceiling.
	ErrFileTooLarge = errors.New("file too large")
)

// TransferError is a failure moving a single file. It never aborts a batch.
type TransferError struct {
	Op   string // "check", "download" or "upload"
	File string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Downloader fetches file content from the chat platform.
type Downloader interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Uploader stores file content in the CRM and returns its GUID.
type Uploader interface {
	UploadFile(ctx context.Context, filename string, content []byte) (string, error)
}

// Transfer moves files from Telegram into Pyrus.
type Transfer struct {
	down    Downloader
	up      Uploader
	maxSize int64
	logger  *slog.Logger
}

// NewTransfer creates a Transfer rejecting files larger than maxSize bytes.
func NewTransfer(down Downloader, up Uploader, maxSize int64, logger *slog.Logger) *Transfer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transfer{
		down:    down,
		up:      up,
		maxSize: maxSize,
		logger:  logger.With("component", "media_transfer"),
	}
}

// MaxSize returns the configured size ceiling in bytes.
func (t *Transfer) MaxSize() int64 {
	return t.maxSize
}

// Check validates the file before any network transfer happens.
func (t *Transfer) Check(f *File) error {
	if f == nil || f.FileID == "" {
		return &TransferError{Op: "check", File: "unknown", Err: ErrUnsupportedFile}
	}
	if t.maxSize > 0 && f.Size > t.maxSize {
		return &TransferError{Op: "check", File: f.Name, Err: ErrFileTooLarge}
	}
	return nil
}

// Resolve downloads the file from Telegram and re-uploads it to Pyrus, returning the GUID.
// The size check runs first so oversize files are never downloaded.
func (t *Transfer) Resolve(ctx context.Context, f *File) (string, error) {
	if err := t.Check(f); err != nil {
		return "", err
	}

	content, err := t.down.DownloadFile(ctx, f.FileID)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to download file from Telegram", "file", f.Name, "error", err)
		return "", &TransferError{Op: "download", File: f.Name, Err: err}
	}

	guid, err := t.up.UploadFile(ctx, f.Name, content)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to upload file to Pyrus", "file", f.Name, "error", err)
		return "", &TransferError{Op: "upload", File: f.Name, Err: err}
	}

	t.logger.DebugContext(ctx, "File transferred", "file", f.Name, "kind", f.Kind.String(), "bytes", len(content))
	return guid, nil
}
