// Package blob stores uploaded objects.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidKey is returned for keys that would escape the bucket root.
	ErrInvalidKey = errors.New("invalid object key")

	// ErrNotFound is returned by Open when no object is stored under the key.
	ErrNotFound = errors.New("object not found")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key                string `json:"key"`
	Size               int64  `json:"size"`
	ContentType        string `json:"contentType"`
	ContentDisposition string `json:"contentDisposition"`

	// ModTime is filled by Open.
	ModTime time.Time `json:"-"`
}

// Bucket is an object store keyed by slash-separated paths.
type Bucket interface {
	Put(ctx context.Context, key string, body io.Reader, contentType, contentDisposition string) (*ObjectInfo, error)
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadSeekCloser, *ObjectInfo, error)
}

// DirBucket stores objects as files under a root directory, with a JSON sidecar
// per object holding its HTTP metadata.
type DirBucket struct {
	root string
}

// NewDirBucket creates the root directory if needed.
func NewDirBucket(root string) (*DirBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket dir: %w", err)
	}
	return &DirBucket{root: root}, nil
}

// Root returns the directory objects are written under.
func (b *DirBucket) Root() string {
	return b.root
}

func (b *DirBucket) path(key string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + key))
	if key == "" || strings.Contains(key, "..") || clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Put writes body under key.
func (b *DirBucket) Put(ctx context.Context, key string, body io.Reader, contentType, contentDisposition string) (*ObjectInfo, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create object: %w", err)
	}
	size, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write object: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to commit object: %w", err)
	}

	info := &ObjectInfo{Key: key, Size: size, ContentType: contentType, ContentDisposition: contentDisposition}
	meta, _ := json.Marshal(info)
	if err := os.WriteFile(path+".meta.json", meta, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write object metadata: %w", err)
	}
	return info, nil
}

// Stat returns the metadata of key, or nil when it does not exist.
func (b *DirBucket) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path + ".meta.json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info ObjectInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse object metadata: %w", err)
	}
	return &info, nil
}

// Open returns the object's content and metadata. A missing object or
// sidecar yields ErrNotFound.
func (b *DirBucket) Open(ctx context.Context, key string) (io.ReadSeekCloser, *ObjectInfo, error) {
	info, err := b.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if info == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	path, _ := b.path(key)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open object: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat object: %w", err)
	}
	info.ModTime = stat.ModTime()
	return f, info, nil
}
