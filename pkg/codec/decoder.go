package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded image handle.
type Image struct {
	pixels image.Image
	scale  float64
	format string
	digest string
}

// Pixels returns the decoded pixel data.
func (i *Image) Pixels() image.Image {
	return i.pixels
}

// Scale returns the number of pixels per point.
func (i *Image) Scale() float64 {
	return i.scale
}

// Format returns the name of the decoder that produced the image, e.g. "png".
func (i *Image) Format() string {
	return i.format
}

// Digest returns the content digest of the source bytes (sha256:...).
func (i *Image) Digest() string {
	return i.digest
}

// Bounds returns the pixel dimensions.
func (i *Image) Bounds() image.Rectangle {
	return i.pixels.Bounds()
}

// Size returns the width and height in points.
func (i *Image) Size() (float64, float64) {
	b := i.pixels.Bounds()
	return float64(b.Dx()) / i.scale, float64(b.Dy()) / i.scale
}

// Decoder implements Codec with the standard library and x/image formats.
type Decoder struct{}

// NewDecoder creates a new decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes data as png, jpeg, gif, webp, bmp or tiff.
func (d *Decoder) Decode(data []byte, scale float64) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImageData)
	}
	if scale <= 0 {
		scale = 1
	}

	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageData, err)
	}

	digest, _, err := v1.SHA256(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compute image digest: %w", err)
	}

	return &Image{
		pixels: pixels,
		scale:  scale,
		format: format,
		digest: digest.String(),
	}, nil
}
