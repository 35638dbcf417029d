// internal/imaging/imaging_test.go
package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNormalizeShrinksAndReencodes(t *testing.T) {
	out, err := Normalize(pngBytes(t, 2048, 1024), 1024, 85)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("format = %s, want jpeg", format)
	}
	if b := img.Bounds(); b.Dx() != 1024 || b.Dy() != 512 {
		t.Fatalf("size = %dx%d, want 1024x512", b.Dx(), b.Dy())
	}
}

func TestNormalizeNeverUpscales(t *testing.T) {
	out, err := Normalize(pngBytes(t, 40, 30), 1024, 85)
	if err != nil {
		t.Fatal(err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 40 || cfg.Height != 30 {
		t.Fatalf("size = %dx%d, want 40x30", cfg.Width, cfg.Height)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, err := Normalize([]byte("not an image"), 1024, 85); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := Normalize(nil, 1024, 85); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestThumbnail(t *testing.T) {
	_, w, h, err := Thumbnail(pngBytes(t, 300, 600), 100, 100)
	if err != nil {
		t.Fatal(err)
	}
	if w != 50 || h != 100 {
		t.Fatalf("thumbnail = %dx%d, want 50x100", w, h)
	}
}

func TestFitWithin(t *testing.T) {
	cases := []struct{ w, h, mw, mh, ww, wh int }{
		{2000, 1000, 1024, 1024, 1024, 512},
		{1000, 2000, 1024, 1024, 512, 1024},
		{500, 400, 1024, 1024, 500, 400},
		{0, 10, 5, 5, 1, 1},
	}
	for _, c := range cases {
		gw, gh := fitWithin(c.w, c.h, c.mw, c.mh)
		if gw != c.ww || gh != c.wh {
			t.Errorf("fitWithin(%d,%d,%d,%d) = %d,%d want %d,%d", c.w, c.h, c.mw, c.mh, gw, gh, c.ww, c.wh)
		}
	}
}

func TestPlaceholder(t *testing.T) {
	out, err := Placeholder(64, 48)
	if err != nil {
		t.Fatalf("Placeholder: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil || format != "png" || cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("placeholder = %s %dx%d err=%v", format, cfg.Width, cfg.Height, err)
	}
	if _, err := Placeholder(0, 10); err == nil {
		t.Fatal("zero width should fail")
	}
}

func TestNormalizeAllKeepsOrder(t *testing.T) {
	inputs := [][]byte{pngBytes(t, 20, 20), []byte("bad"), pngBytes(t, 10, 10)}
	results := NormalizeAll(inputs, 1024, 85, 2)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("valid inputs failed: %v / %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Fatal("invalid input should fail")
	}
}

func TestUploadHelpers(t *testing.T) {
	if !IsSupportedUpload("Photo.JPG") || IsSupportedUpload("notes.txt") || IsSupportedUpload("scan.bmp") {
		t.Fatal("IsSupportedUpload mismatch")
	}
	if MimeTypeFromName("a.webp") != "image/webp" || MimeTypeFromName("a.bmp") != "image/bmp" || MimeTypeFromName("a") != "image/jpeg" {
		t.Fatal("MimeTypeFromName mismatch")
	}
}
