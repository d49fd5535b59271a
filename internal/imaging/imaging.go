package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxDimension is the maximum width or height for stored images.
const MaxDimension = 1600

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// Normalizable lists the formats that are decoded and downscaled. Other
// image types are stored as uploaded.
var Normalizable = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Result contains the processed image data.
type Result struct {
	Data    []byte
	MIME    string
	Resized bool
}

// Sniff returns the MIME type detected from the data itself.
func Sniff(data []byte) string {
	return http.DetectContentType(data)
}

// Normalize validates JPEG or PNG data by sniffing bytes and downscales it if
// larger than MaxDimension, re-encoding in the source format. Images already
// within bounds are returned unchanged.
func Normalize(data []byte) (*Result, error) {
	// Sniff actual MIME type from bytes (not trusting client headers).
	detected := Sniff(data)
	if !Normalizable[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG and PNG accepted)", detected)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= MaxDimension && cfg.Height <= MaxDimension {
		return &Result{Data: data, MIME: detected}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	switch detected {
	case "image/png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", detected, err)
	}

	return &Result{Data: buf.Bytes(), MIME: detected, Resized: true}, nil
}

// downscale resizes the image so neither dimension exceeds maxDim.
// Uses high-quality Catmull-Rom interpolation.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	// Calculate new dimensions preserving aspect ratio.
	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	newW = max(newW, 1)
	newH = max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	// Register decoders (jpeg is registered by default, but be explicit).
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
