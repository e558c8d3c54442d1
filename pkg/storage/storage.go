// Package storage keeps rendered videos and turns them into the video
// reference stored on an animation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// VideoStore persists a rendered mp4 found at srcPath under name and returns
// the reference clients use to fetch it.
type VideoStore interface {
	Save(ctx context.Context, name, srcPath string) (string, error)
}

// VideoURLPrefix is the route local videos are served under.
const VideoURLPrefix = "/api/videos/"

var ErrInvalidName = errors.New("invalid video name")

// Local stores videos in a directory on disk.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create video directory: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Save(_ context.Context, name, srcPath string) (string, error) {
	dst, err := l.Path(name)
	if err != nil {
		return "", err
	}
	if err := moveFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("failed to store video: %w", err)
	}
	return VideoURLPrefix + name, nil
}

// Path resolves name to a file inside the store, rejecting anything that
// would escape the directory.
func (l *Local) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(l.dir, name), nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
