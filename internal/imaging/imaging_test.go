package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func createTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{0, 0, 255, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestNormalizeSmallJPEGUnchanged(t *testing.T) {
	data := createTestJPEG(100, 100)
	result, err := Normalize(data)
	if err != nil {
		t.Fatalf("Normalize JPEG: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", result.MIME)
	}
	if result.Resized || !bytes.Equal(result.Data, data) {
		t.Error("small image should be stored as uploaded")
	}
}

func TestNormalizeKeepsPNG(t *testing.T) {
	data := createTestPNG(MaxDimension+400, 200)
	result, err := Normalize(data)
	if err != nil {
		t.Fatalf("Normalize PNG: %v", err)
	}
	if result.MIME != "image/png" {
		t.Errorf("expected image/png, got %s", result.MIME)
	}
	if !result.Resized {
		t.Error("expected oversized PNG to be resized")
	}

	img, format, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if format != "png" {
		t.Errorf("expected png output, got %s", format)
	}
	if img.Bounds().Dx() != MaxDimension {
		t.Errorf("expected width %d, got %d", MaxDimension, img.Bounds().Dx())
	}
}

func TestNormalizeDownscale(t *testing.T) {
	data := createTestJPEG(2048, 2048)
	result, err := Normalize(data)
	if err != nil {
		t.Fatalf("Normalize large image: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		t.Errorf("expected max %dx%d, got %dx%d", MaxDimension, MaxDimension, bounds.Dx(), bounds.Dy())
	}
}

func TestNormalizeInvalidFormat(t *testing.T) {
	_, err := Normalize([]byte("not an image"))
	if err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestNormalizeGIFRejected(t *testing.T) {
	_, err := Normalize([]byte("GIF89a..."))
	if err == nil {
		t.Error("expected error for GIF")
	}
}
