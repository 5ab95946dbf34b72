// Package blob stores uploaded image bytes on the local filesystem and hands
// out public locators for them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"imgsearch/internal/models"
)

// FilesRoute is the URL prefix the HTTP server serves stored blobs under.
const FilesRoute = "/files"

type Object struct {
	Key     string
	Locator string
	Size    int64
}

type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, publicURL string) (*Local, error) {
	const op = "blob.NewLocal"

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(publicURL, "/")}, nil
}

// Root is the directory blobs are written under.
func (l *Local) Root() string { return l.root }

// NewKey returns a fresh key for an original upload, keeping its extension.
func NewKey(filename string) string {
	return path.Join("original", uuid.New().String()+strings.ToLower(filepath.Ext(filename)))
}

// ThumbnailKey is where the rendered thumbnail of record id lives.
func ThumbnailKey(id int64) string {
	return path.Join("thumbs", fmt.Sprintf("%d.jpg", id))
}

func (l *Local) Locator(key string) string {
	return l.baseURL + FilesRoute + "/" + key
}

func (l *Local) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if key == "" || clean != key {
		return "", fmt.Errorf("%w: bad blob key %q", models.ErrInvalidArgument, key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Put writes r under key. The file appears atomically: data goes to a temp
// file that is renamed into place after fsync.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (Object, error) {
	const op = "blob.Put"

	full, err := l.resolve(key)
	if err != nil {
		return Object{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, fmt.Errorf("%s: %v", op, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, fmt.Errorf("%s: %v", op, err)
	}

	tmp := full + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return Object{}, fmt.Errorf("%s: %v", op, err)
	}
	size, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("%s: %v", op, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return Object{}, fmt.Errorf("%s: %v", op, err)
	}

	return Object{Key: key, Locator: l.Locator(key), Size: size}, nil
}

// Open returns the blob at key and its size, or models.ErrNotFound.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	const op = "blob.Open"

	full, err := l.resolve(key)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%s: %w: %s", op, models.ErrNotFound, key)
		}
		return nil, 0, fmt.Errorf("%s: %v", op, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%s: %v", op, err)
	}
	return f, info.Size(), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (l *Local) Delete(ctx context.Context, key string) error {
	const op = "blob.Delete"

	full, err := l.resolve(key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}
