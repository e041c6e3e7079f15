package object

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrInvalidKey is returned for storage keys that escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")
	// ErrNotFound is returned by Open when no object exists at the key.
	ErrNotFound = errors.New("object not found")
)

// ObjectStore saves and retrieves binary objects such as uploaded documents
// and generated audio.
type ObjectStore interface {
	// Save stores r under a fresh key in the user's namespace and sniffs its MIME type.
	Save(ctx context.Context, userID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	// SaveWithKey stores r at an exact key.
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// CleanKey normalizes a slash-separated key and rejects traversal.
func CleanKey(storageKey string) (string, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(storageKey), "\\", "/")
	if raw == "" || strings.HasPrefix(raw, "/") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(raw)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
