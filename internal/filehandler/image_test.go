package filehandler

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"
)

func TestImageMetadataFormatContext(t *testing.T) {
	tests := []struct {
		name     string
		meta     *ImageMetadata
		contains []string
		excludes []string
	}{
		{
			name: "With GPS, date and camera",
			meta: &ImageMetadata{
				Latitude:    40.7128,
				Longitude:   -74.0060,
				HasGPS:      true,
				DateTaken:   time.Date(2024, 12, 31, 10, 30, 0, 0, time.UTC),
				HasDate:     true,
				CameraMake:  "Apple",
				CameraModel: "iPhone 15",
			},
			contains: []string{"Location", "40°42'", "December 31, 2024", "10:30 AM", "Apple iPhone 15"},
		},
		{
			name:     "Without anything",
			meta:     &ImageMetadata{},
			contains: []string{"Not available in image metadata"},
			excludes: []string{"Location", "Camera"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := tt.meta.FormatMetadataContext()
			for _, substr := range tt.contains {
				if !strings.Contains(text, substr) {
					t.Errorf("FormatMetadataContext() missing %q", substr)
				}
			}
			for _, substr := range tt.excludes {
				if strings.Contains(text, substr) {
					t.Errorf("FormatMetadataContext() should not contain %q", substr)
				}
			}
		})
	}
}

func TestCalculateThumbnailDimensions(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{4000, 3000, 400, 400, 300},
		{3000, 4000, 400, 300, 400},
		{300, 200, 400, 300, 200},
		{10000, 10, 400, 400, 1},
	}
	for _, tt := range tests {
		gw, gh := calculateThumbnailDimensions(tt.w, tt.h, tt.max)
		if gw != tt.wantW || gh != tt.wantH {
			t.Errorf("calculateThumbnailDimensions(%d, %d, %d) = %dx%d, want %dx%d",
				tt.w, tt.h, tt.max, gw, gh, tt.wantW, tt.wantH)
		}
	}
}

func TestInspect_PNGWithoutEXIF(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	in, err := Inspect(buf.Bytes())
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if in.Width != 320 || in.Height != 240 || in.Size != int64(buf.Len()) {
		t.Errorf("Inspect = %dx%d (%d bytes)", in.Width, in.Height, in.Size)
	}

	if _, err := Inspect([]byte("not an image")); err == nil {
		t.Error("Inspect(garbage) should fail")
	}
}
