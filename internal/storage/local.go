// Package storage keeps uploaded files on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("storage: file too large")

// ErrUnsupportedType is returned for content outside the allowed MIME types.
var ErrUnsupportedType = errors.New("storage: unsupported file type")

// Object describes a stored file.
type Object struct {
	Path     string
	Size     int64
	MimeType string
}

// Local stores files below a root directory, sharded by upload month.
type Local struct {
	root     string
	maxBytes int64
	now      func() time.Time
}

// NewLocal prepares root and returns a Local store. maxBytes <= 0 disables the
// size limit.
func NewLocal(root string, maxBytes int64) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: root directory required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Local{root: root, maxBytes: maxBytes, now: time.Now}, nil
}

// Save writes r under a generated name that keeps the extension of name.
// The content type is detected from the bytes, not the client header.
func (l *Local) Save(ctx context.Context, name string, r io.Reader) (Object, error) {
	mime, body, err := Sniff(r)
	if err != nil {
		return Object{}, fmt.Errorf("storage: read upload: %w", err)
	}
	if !Allowed(mime.String()) {
		return Object{}, fmt.Errorf("%w: %s", ErrUnsupportedType, BaseType(mime))
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = mime.Extension()
	}
	rel := path.Join(l.now().UTC().Format("2006/01"), uuid.NewString()+ext)
	full, err := l.resolve(rel)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return Object{}, fmt.Errorf("storage: create dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return Object{}, fmt.Errorf("storage: create file: %w", err)
	}
	src := body
	if l.maxBytes > 0 {
		src = io.LimitReader(body, l.maxBytes+1)
	}
	n, err := io.Copy(f, contextReader{ctx: ctx, r: src})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && l.maxBytes > 0 && n > l.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return Object{}, err
		}
		return Object{}, fmt.Errorf("storage: write file: %w", err)
	}
	return Object{Path: rel, Size: n, MimeType: BaseType(mime)}, nil
}

// Open returns a reader for a stored file.
func (l *Local) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	full, err := l.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stored file %s: %w", rel, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	return f, nil
}

// Delete removes a stored file. Missing files are not an error.
func (l *Local) Delete(ctx context.Context, rel string) error {
	full, err := l.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// resolve maps rel onto the root, refusing paths that escape it.
func (l *Local) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: invalid path %q", rel)
	}
	return filepath.Join(l.root, clean), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
