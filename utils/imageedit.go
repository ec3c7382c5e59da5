package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/Perceptus-Labs/perceptus-object-detector/models"
)

// EditImage applies the picker's editing step: a centered crop to the
// requested aspect ratio, re-encoded as JPEG at the requested quality.
func EditImage(data []byte, opts models.AcquireOptions) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	cropped := src
	if opts.AllowEditing && opts.Aspect.Width > 0 && opts.Aspect.Height > 0 {
		cropped = cropToAspect(src, opts.Aspect)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, cropped, &jpeg.Options{Quality: jpegQuality(opts.Quality)}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return out.Bytes(), nil
}

func cropToAspect(src image.Image, aspect models.AspectRatio) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return src
	}

	targetW, targetH := w, h
	// Compare w/h against aspect.Width/aspect.Height without floats.
	if w*aspect.Height > h*aspect.Width {
		targetW = h * aspect.Width / aspect.Height
	} else {
		targetH = w * aspect.Height / aspect.Width
	}
	if targetW == w && targetH == h {
		return src
	}

	x0 := b.Min.X + (w-targetW)/2
	y0 := b.Min.Y + (h-targetH)/2
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), src, image.Pt(x0, y0), draw.Src)
	return dst
}

func jpegQuality(q float64) int {
	if q <= 0 || math.IsNaN(q) {
		return jpeg.DefaultQuality
	}
	quality := int(math.Round(q * 100))
	if quality > 100 {
		quality = 100
	}
	if quality < 1 {
		quality = 1
	}
	return quality
}
