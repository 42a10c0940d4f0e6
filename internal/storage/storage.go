// Package storage keeps uploaded images under a media root and resolves
// stored keys to public URLs.
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

	"github.com/google/uuid"
)

// Storage saves and removes objects addressed by relative keys.
type Storage interface {
	Save(ctx context.Context, dir, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Local writes objects to the filesystem below Root and serves them under
// BaseURL.
type Local struct {
	Root    string
	BaseURL string
}

func NewLocal(root, baseURL string) *Local {
	return &Local{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Save stores r as dir/<uuid><ext> and returns the key.  The extension is
// taken from filename, lower-cased.
func (l *Local) Save(ctx context.Context, dir, filename string, r io.Reader) (string, error) {
	key := path.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	full, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return key, ctx.Err()
}

// Delete removes key.  Missing objects and absolute URLs are ignored.
func (l *Local) Delete(_ context.Context, key string) error {
	if key == "" || isAbsolute(key) {
		return nil
	}
	full, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// URL returns the public address for key.  Keys that already are absolute
// URLs, such as scraped covers, pass through unchanged.
func (l *Local) URL(key string) string {
	if key == "" || isAbsolute(key) {
		return key
	}
	return l.BaseURL + "/" + strings.TrimLeft(key, "/")
}

// resolve maps key below Root and refuses paths that escape it.
func (l *Local) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	full := filepath.Join(l.Root, filepath.FromSlash(clean))
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage key %q escapes media root", key)
	}
	return abs, nil
}

func isAbsolute(key string) bool {
	return strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://")
}
