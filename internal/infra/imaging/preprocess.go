package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

const (
	DefaultMaxWidth  = 1200
	DefaultQuality   = 0.7
	DefaultMaxPixels = 50_000_000
	MediaType        = "image/jpeg"
)

// Preprocessor downscales to a bounded width and re-encodes every image as JPEG.
type Preprocessor struct {
	MaxWidth  int
	Quality   float64 // 0..1
	MaxPixels int     // decode budget, width*height; 0 means DefaultMaxPixels
}

func New(maxWidth int, quality float64) *Preprocessor {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if quality <= 0 || quality > 1 {
		quality = DefaultQuality
	}
	return &Preprocessor{MaxWidth: maxWidth, Quality: quality, MaxPixels: DefaultMaxPixels}
}

// CheckSize reads only the image header and rejects images whose declared
// dimensions exceed maxPixels. A small compressed file can declare a huge canvas.
func CheckSize(data []byte, maxPixels int) (image.Config, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", evaluation.ErrImageDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, fmt.Errorf("%w: empty image %dx%d", evaluation.ErrImageDecode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return image.Config{}, fmt.Errorf("%w: image is %dx%d pixels, limit is %d pixels",
			evaluation.ErrImageDecode, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, nil
}

// TargetSize keeps the aspect ratio: newHeight = height * maxWidth / width.
func TargetSize(w, h, maxWidth int) (int, int) {
	if w <= maxWidth {
		return w, h
	}
	nh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	return maxWidth, nh
}

// Prepare decodes any registered raster format (PNG, JPEG, GIF, WebP, BMP, TIFF).
// Decode failures wrap evaluation.ErrImageDecode.
func (p *Preprocessor) Prepare(ctx context.Context, data []byte) (evaluation.PreparedImage, error) {
	if err := ctx.Err(); err != nil {
		return evaluation.PreparedImage{}, err
	}

	if _, err := CheckSize(data, p.MaxPixels); err != nil {
		return evaluation.PreparedImage{}, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return evaluation.PreparedImage{}, fmt.Errorf("%w: %v", evaluation.ErrImageDecode, err)
	}

	b := src.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), p.MaxWidth)

	// JPEG has no alpha; transparent pixels land on white.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	buf := new(bytes.Buffer)
	q := int(math.Round(p.Quality * 100))
	if err := jpeg.Encode(buf, dst, &jpeg.Options{Quality: q}); err != nil {
		return evaluation.PreparedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}

	return evaluation.PreparedImage{
		Data:      buf.Bytes(),
		MediaType: MediaType,
		Width:     w,
		Height:    h,
	}, nil
}
