package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// Derivative bounding boxes. Cached files depend on these; do not change
// them without clearing the cache.
const (
	IconSize   = 64
	MediumSize = 256
)

// MaxUploadBytes is the largest accepted upload or download.
const MaxUploadBytes = 10 << 20

// AllowedMIME lists the accepted input MIME types.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Sniff detects the MIME type from the bytes (not trusting headers or
// extensions) and rejects anything that is not a supported image.
func Sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image data")
	}
	detected := http.DetectContentType(data)
	if !AllowedMIME[detected] {
		return "", fmt.Errorf("unsupported image format: %s", detected)
	}
	return detected, nil
}

// Decode reads and decodes a JPEG, PNG, GIF or WebP image.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	return img, format, nil
}

// Derive fits img into a box x box square and encodes it as PNG.
func Derive(img image.Image, box int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, Fit(img, box)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG writes img as a compressed PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// Fit resizes the image so neither dimension exceeds maxDim, preserving the
// aspect ratio. Uses Catmull-Rom interpolation.
// Returns the original image if already within bounds.
func Fit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
	image.RegisterFormat("gif", "GIF8?a", gif.Decode, gif.DecodeConfig)
	image.RegisterFormat("webp", "RIFF????WEBPVP8", webp.Decode, webp.DecodeConfig)
}
