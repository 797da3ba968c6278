package mls

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// WatermarkText is the disclosure MLS boards require on staged photos.
const WatermarkText = "Virtually Staged"

const (
	watermarkSize    = 28
	watermarkPadding = 20
	shadowOffset     = 2
)

var (
	textColor   = color.NRGBA{R: 255, G: 255, B: 255, A: 230}
	shadowColor = color.NRGBA{R: 0, G: 0, B: 0, A: 160}
)

var (
	faceOnce sync.Once
	faceErr  error
	wmFace   font.Face
)

func watermarkFace() (font.Face, error) {
	faceOnce.Do(func() {
		f, err := opentype.Parse(gobold.TTF)
		if err != nil {
			faceErr = fmt.Errorf("parse watermark font: %w", err)
			return
		}
		wmFace, faceErr = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    watermarkSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	})
	return wmFace, faceErr
}

// watermarkOrigin returns the text baseline origin for a label textWidth
// pixels wide on a canvas of the given bounds. The label sits bottom-right,
// but never starts left of the padding.
func watermarkOrigin(bounds image.Rectangle, textWidth, descent int) image.Point {
	x := bounds.Max.X - watermarkPadding - textWidth
	if x < bounds.Min.X+watermarkPadding {
		x = bounds.Min.X + watermarkPadding
	}
	y := bounds.Max.Y - watermarkPadding - descent
	return image.Point{X: x, Y: y}
}

// Watermark draws text with a drop shadow in the bottom-right corner of dst.
func Watermark(dst draw.Image, text string) error {
	face, err := watermarkFace()
	if err != nil {
		return err
	}

	width := font.MeasureString(face, text).Ceil()
	origin := watermarkOrigin(dst.Bounds(), width, face.Metrics().Descent.Ceil())

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(shadowColor),
		Face: face,
		Dot:  fixed.P(origin.X+shadowOffset, origin.Y+shadowOffset),
	}
	d.DrawString(text)

	d.Src = image.NewUniform(textColor)
	d.Dot = fixed.P(origin.X, origin.Y)
	d.DrawString(text)
	return nil
}
