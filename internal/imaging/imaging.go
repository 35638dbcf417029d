// internal/imaging/imaging.go

// Package imaging decodes moodboard pictures and re-encodes them in the
// sizes used by the analyzer and the PDF renderer.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxSide   = 1024
	DefaultQuality   = 85
	ThumbnailQuality = 80
)

var uploadExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// IsSupportedUpload reports whether name has an accepted upload extension.
func IsSupportedUpload(name string) bool {
	_, ok := uploadExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MimeTypeFromName guesses a mime type from the file extension, defaulting to JPEG.
func MimeTypeFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := uploadExtensions[ext]; ok {
		return mt
	}
	if ext == ".bmp" {
		return "image/bmp"
	}
	return "image/jpeg"
}

// Decode reads any of the registered formats.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Normalize decodes data, shrinks it so the longer side is at most maxSide,
// drops transparency onto white and encodes a JPEG at quality.
func Normalize(data []byte, maxSide, quality int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), maxSide, maxSide)
	return encodeJPEG(resize(img, w, h), quality)
}

// Thumbnail fits data inside maxW x maxH and returns JPEG bytes with the final size.
func Thumbnail(data []byte, maxW, maxH int) ([]byte, int, int, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}
	w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), maxW, maxH)
	out, err := encodeJPEG(resize(img, w, h), ThumbnailQuality)
	if err != nil {
		return nil, 0, 0, err
	}
	return out, w, h, nil
}

// fitWithin keeps the aspect ratio and never upscales.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// resize draws src onto a white RGBA canvas of w x h.
func resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
