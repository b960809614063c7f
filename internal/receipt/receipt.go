// Package receipt stores receipt attachments for expenses. One expense holds
// at most one receipt; objects are named by expense ID plus an extension
// derived from the content type.
package receipt

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxSize is the largest accepted receipt upload in bytes.
const MaxSize = 10 << 20 // 10MB

// extByType maps accepted MIME types to file extensions.
var extByType = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"application/pdf": "pdf",
}

var typeByExt = map[string]string{
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"pdf":  "application/pdf",
}

// ErrUnsupportedType is returned for uploads outside the accepted MIME types.
var ErrUnsupportedType = errors.New("unsupported receipt type")

// ExtensionFor returns the storage extension for an accepted MIME type.
func ExtensionFor(contentType string) (string, bool) {
	mime := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := extByType[mime]
	return ext, ok
}

// ContentTypeFor returns the MIME type recorded for a stored object name.
func ContentTypeFor(object string) string {
	idx := strings.LastIndexByte(object, '.')
	if idx < 0 {
		return "application/octet-stream"
	}
	if ct, ok := typeByExt[object[idx+1:]]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Store persists receipt blobs. Implementations must be safe for concurrent use.
type Store interface {
	// Save writes the blob under object, replacing any previous content.
	Save(ctx context.Context, object string, r io.Reader) error
	// Open returns the blob for reading.
	Open(ctx context.Context, object string) (io.ReadCloser, error)
	// Remove deletes the blob. Removing a missing object is not an error.
	Remove(ctx context.Context, object string) error
}

// FSStore keeps receipt blobs as files under a single directory.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed and returns a store over it.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(object string) string {
	// object names are generated internally; Base guards against traversal anyway
	return filepath.Join(s.dir, filepath.Base(object))
}

// Save implements Store.
func (s *FSStore) Save(_ context.Context, object string, r io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(object))
}

// Open implements Store.
func (s *FSStore) Open(_ context.Context, object string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(object))
	if errors.Is(err, os.ErrNotExist) {
		return nil, os.ErrNotExist
	}
	return f, err
}

// Remove implements Store.
func (s *FSStore) Remove(_ context.Context, object string) error {
	err := os.Remove(s.path(object))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
