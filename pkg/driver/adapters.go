package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexcolls/oriane-sub000/pkg/objectstore"
)

// S3VideoSource satisfies VideoSource against an object-store-backed
// bucket, caching downloads under a local scratch directory so a later
// LocalPath check in the same process avoids refetching.
type S3VideoSource struct {
	store   *objectstore.Store
	scratch string
}

// NewS3VideoSource builds a VideoSource that downloads into scratchDir,
// named per (platform, code) so concurrent items never collide.
func NewS3VideoSource(store *objectstore.Store, scratchDir string) *S3VideoSource {
	return &S3VideoSource{store: store, scratch: scratchDir}
}

func (s *S3VideoSource) localFile(platform, code string) string {
	return filepath.Join(s.scratch, platform, code, "video.mp4")
}

// LocalPath reports whether a prior Download already cached the video.
func (s *S3VideoSource) LocalPath(platform, code string) (string, bool) {
	path := s.localFile(platform, code)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Download fetches the source video into the scratch directory, returning
// ErrVideoNotFound when the object doesn't exist.
func (s *S3VideoSource) Download(ctx context.Context, platform, code string) (string, error) {
	path := s.localFile(platform, code)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("preparing scratch dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating local video file: %w", err)
	}
	defer f.Close()

	if err := s.store.DownloadVideo(ctx, platform, code, f); err != nil {
		os.Remove(path)
		if errors.Is(err, objectstore.ErrNotFound) {
			return "", ErrVideoNotFound
		}
		return "", err
	}
	return path, nil
}
