// Package mls renders listing photos into MLS-compliant JPEGs and bundles
// them into a zip archive.
//
// Every rendition is exactly CanvasWidth x CanvasHeight: the source is scaled
// uniformly to fit, centered, and letterboxed in white. Staged renditions
// carry a "Virtually Staged" disclosure in the bottom-right corner.
package mls

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

const (
	CanvasWidth  = 1024
	CanvasHeight = 768

	// Resolution is the label stored on every ExportFile.
	Resolution = "1024x768"

	JPEGQuality = 92
)

// Kind distinguishes the two renditions produced per image.
type Kind string

const (
	KindOriginal Kind = "original"
	KindStaged   Kind = "staged"
)

// Rendition is one encoded output file.
type Rendition struct {
	Kind        Kind
	Data        []byte
	Width       int
	Height      int
	Watermarked bool
}

// Compliant reports whether the rendition meets the MLS rules: canvas
// sized, and disclosed when it is a staged image.
func (r *Rendition) Compliant() bool {
	if r.Width != CanvasWidth || r.Height != CanvasHeight {
		return false
	}
	return r.Kind != KindStaged || r.Watermarked
}

// Decode reads an image and applies its EXIF orientation so phone photos
// come out upright.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// FitRect returns where a w x h source lands on the canvas after uniform
// scaling and centering. Zero-sized sources yield an empty rectangle.
func FitRect(w, h int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	scale := math.Min(float64(CanvasWidth)/float64(w), float64(CanvasHeight)/float64(h))
	dw := clampDim(int(math.Round(float64(w)*scale)), CanvasWidth)
	dh := clampDim(int(math.Round(float64(h)*scale)), CanvasHeight)

	x := (CanvasWidth - dw) / 2
	y := (CanvasHeight - dh) / 2
	return image.Rect(x, y, x+dw, y+dh)
}

func clampDim(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}

// Fit draws src onto a white canvas using CatmullRom resampling.
func Fit(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, CanvasWidth, CanvasHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	rect := FitRect(src.Bounds().Dx(), src.Bounds().Dy())
	if rect.Empty() {
		return dst
	}
	draw.CatmullRom.Scale(dst, rect, src, src.Bounds(), draw.Over, nil)
	return dst
}

// Render produces the MLS rendition of src. Staged renditions get the
// disclosure watermark.
func Render(src image.Image, kind Kind) (*Rendition, error) {
	canvas := Fit(src)

	watermarked := false
	if kind == KindStaged {
		if err := Watermark(canvas, WatermarkText); err != nil {
			return nil, err
		}
		watermarked = true
	}

	data, err := EncodeJPEG(canvas)
	if err != nil {
		return nil, err
	}
	return &Rendition{
		Kind:        kind,
		Data:        data,
		Width:       canvas.Bounds().Dx(),
		Height:      canvas.Bounds().Dy(),
		Watermarked: watermarked,
	}, nil
}

// EncodeJPEG encodes img at JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
