package codec

import (
	"errors"
)

// ErrInvalidImageData is returned when bytes cannot be decoded as an image.
var ErrInvalidImageData = errors.New("invalid image data")

// Codec turns raw bytes into a renderable image.
type Codec interface {
	// Decode decodes data at the given scale factor.
	// A failure wraps ErrInvalidImageData.
	Decode(data []byte, scale float64) (*Image, error)
}
