package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type GalleryItem struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// GalleryChooser presents items and returns the chosen item's name. An empty
// name means the user dismissed the picker.
type GalleryChooser interface {
	Choose(ctx context.Context, items []GalleryItem) (string, error)
}

// ChooserFunc adapts a function to GalleryChooser.
type ChooserFunc func(ctx context.Context, items []GalleryItem) (string, error)

func (f ChooserFunc) Choose(ctx context.Context, items []GalleryItem) (string, error) {
	return f(ctx, items)
}

var galleryExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

type Gallery struct {
	Dir string
}

func NewGallery(dir string) *Gallery {
	return &Gallery{Dir: dir}
}

// List returns the images in the gallery directory, newest first.
func (g *Gallery) List() ([]GalleryItem, error) {
	entries, err := os.ReadDir(g.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery %s: %w", g.Dir, err)
	}

	items := make([]GalleryItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !galleryExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, GalleryItem{
			Name:    entry.Name(),
			Path:    filepath.Join(g.Dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ModTime.Equal(items[j].ModTime) {
			return items[i].Name < items[j].Name
		}
		return items[i].ModTime.After(items[j].ModTime)
	})
	return items, nil
}

// Pick asks chooser for an item. It returns "" when the user cancels.
func (g *Gallery) Pick(ctx context.Context, chooser GalleryChooser) (GalleryItem, error) {
	items, err := g.List()
	if err != nil {
		return GalleryItem{}, err
	}
	name, err := chooser.Choose(ctx, items)
	if err != nil {
		return GalleryItem{}, err
	}
	if name == "" {
		return GalleryItem{}, nil
	}
	for _, item := range items {
		if item.Name == name {
			return item, nil
		}
	}
	return GalleryItem{}, fmt.Errorf("image %q not found in gallery", name)
}
