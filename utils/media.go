package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Perceptus-Labs/perceptus-object-detector/config"
	"github.com/Perceptus-Labs/perceptus-object-detector/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Camera is the capture side of the media library.
type Camera interface {
	PermissionGranted() (bool, error)
	TryCapture(ctx context.Context) ([]byte, error)
}

// MediaLibrary is the device media capability: camera capture and gallery
// selection, both producing an edited copy under CaptureDir.
type MediaLibrary struct {
	Camera     Camera
	Gallery    *Gallery
	Chooser    GalleryChooser
	CaptureDir string
}

func NewMediaLibrary(cfg config.MediaConfig, chooser GalleryChooser) *MediaLibrary {
	return &MediaLibrary{
		Camera:     NewCameraCapture(cfg.CameraDevice),
		Gallery:    NewGallery(cfg.GalleryDir),
		Chooser:    chooser,
		CaptureDir: cfg.CaptureDir,
	}
}

// WithChooser returns a copy of m that asks chooser for gallery selections.
func (m *MediaLibrary) WithChooser(chooser GalleryChooser) *MediaLibrary {
	clone := *m
	clone.Chooser = chooser
	return &clone
}

func (m *MediaLibrary) RequestCameraPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return m.Camera.PermissionGranted()
}

func (m *MediaLibrary) Acquire(ctx context.Context, mode models.AcquireMode, opts models.AcquireOptions) (models.AcquireResult, error) {
	var (
		data []byte
		err  error
	)

	switch mode {
	case models.AcquireModeCamera:
		data, err = m.Camera.TryCapture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return models.AcquireResult{Canceled: true}, nil
			}
			return models.AcquireResult{}, err
		}
	case models.AcquireModeGallery:
		if m.Chooser == nil {
			return models.AcquireResult{}, errors.New("gallery chooser not configured")
		}
		item, err := m.Gallery.Pick(ctx, m.Chooser)
		if err != nil {
			return models.AcquireResult{}, err
		}
		if item.Path == "" {
			return models.AcquireResult{Canceled: true}, nil
		}
		data, err = os.ReadFile(item.Path)
		if err != nil {
			return models.AcquireResult{}, fmt.Errorf("failed to read %s: %w", item.Path, err)
		}
	default:
		return models.AcquireResult{}, fmt.Errorf("unknown acquire mode %q", mode)
	}

	edited, err := EditImage(data, opts)
	if err != nil {
		return models.AcquireResult{}, err
	}

	path, err := m.store(edited)
	if err != nil {
		return models.AcquireResult{}, err
	}
	zap.L().Debug("Image acquired", zap.String("mode", string(mode)), zap.String("path", path), zap.Int("size", len(edited)))
	return models.AcquireResult{URI: path}, nil
}

func (m *MediaLibrary) store(data []byte) (string, error) {
	if err := os.MkdirAll(m.CaptureDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create capture dir: %w", err)
	}
	path := filepath.Join(m.CaptureDir, uuid.New().String()+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
