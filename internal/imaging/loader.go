package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// ErrDecode is wrapped by every error caused by unreadable image data.
var ErrDecode = errors.New("image could not be decoded")

// Decode reads an image from r, applying EXIF orientation.
//
// Returns:
//   - image.Image: The decoded image. The concrete type depends on the format.
//   - error: Wraps ErrDecode if the data is not a supported image or has no pixels.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	return img, nil
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	return Decode(bytes.NewReader(data))
}

// Load opens and decodes the image file at path.
//
// A missing or unreadable file is reported as a plain I/O error; only
// undecodable content wraps ErrDecode.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return Decode(f)
}
