// Package photo stores item photos on local disk and derives thumbnails.
package photo

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

const (
	uploadsDir = "uploads"
	thumbsDir  = "thumbs"

	thumbnailSize = 320

	// maxConcurrentResizes bounds decode memory: image decoding is the only
	// part of this service with unbounded allocation.
	maxConcurrentResizes = 4
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Service writes photos under <root>/uploads and thumbnails under
// <root>/uploads/thumbs. Stored paths are relative to <root>/uploads so they
// can be served from a single static route.
type Service struct {
	root string
	sem  *semaphore.Weighted
}

// NewService creates a photo service rooted at dataDir.
func NewService(dataDir string) (*Service, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, uploadsDir, thumbsDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create uploads directory")
	}
	return &Service{
		root: dataDir,
		sem:  semaphore.NewWeighted(maxConcurrentResizes),
	}, nil
}

// UploadsDir returns the directory the static file route serves.
func (s *Service) UploadsDir() string {
	return filepath.Join(s.root, uploadsDir)
}

// Save persists an uploaded photo and derives its thumbnail. It returns the
// stored paths relative to the uploads directory. Thumbnail generation is
// best effort: a corrupt but saveable file yields an empty thumbnail path.
func (s *Service) Save(ctx context.Context, filename string, r io.Reader) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", "", errors.Errorf("unsupported image type %q", ext)
	}

	name := shortuuid.New() + ext
	fullPath := filepath.Join(s.root, uploadsDir, name)

	f, err := os.Create(fullPath)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to create photo file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(fullPath)
		return "", "", errors.Wrap(err, "failed to write photo file")
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return "", "", errors.Wrap(err, "failed to close photo file")
	}

	thumbPath, err := s.makeThumbnail(ctx, name)
	if err != nil {
		slog.Warn("thumbnail generation failed", "photo", name, "error", err)
		return name, "", nil
	}
	return name, thumbPath, nil
}

// Delete removes a photo and its thumbnail. Missing files are ignored.
func (s *Service) Delete(imagePath, thumbnailPath string) {
	if imagePath != "" {
		if err := os.Remove(filepath.Join(s.root, uploadsDir, imagePath)); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove photo", "photo", imagePath, "error", err)
		}
	}
	if thumbnailPath != "" {
		if err := os.Remove(filepath.Join(s.root, uploadsDir, thumbnailPath)); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove thumbnail", "thumbnail", thumbnailPath, "error", err)
		}
	}
}

func (s *Service) makeThumbnail(ctx context.Context, name string) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	src, err := imaging.Open(filepath.Join(s.root, uploadsDir, name))
	if err != nil {
		return "", errors.Wrap(err, "failed to decode photo")
	}

	thumb := imaging.Fit(src, thumbnailSize, thumbnailSize, imaging.Lanczos)
	relPath := filepath.Join(thumbsDir, name)
	if err := imaging.Save(thumb, filepath.Join(s.root, uploadsDir, relPath)); err != nil {
		return "", errors.Wrap(err, "failed to save thumbnail")
	}
	return relPath, nil
}
