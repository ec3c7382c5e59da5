package utils

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// FileEncoder turns a local image reference into a base64 payload.
type FileEncoder struct{}

func NewFileEncoder() *FileEncoder {
	return &FileEncoder{}
}

func (e *FileEncoder) EncodeBase64(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := LocalPath(ref)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", path)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// LocalPath accepts either a plain path or a file:// URI.
func LocalPath(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty image reference")
	}
	if !strings.HasPrefix(ref, "file://") {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image uri %q: %w", ref, err)
	}
	if u.Path == "" {
		return "", fmt.Errorf("image uri %q has no path", ref)
	}
	return u.Path, nil
}
