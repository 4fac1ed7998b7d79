// Package imaging validates and decodes uploaded images: MIME sniffing
// against an allow-list, size caps, decoding, and resizing to model input.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	// ErrEmptyImage is returned for a zero-length payload.
	ErrEmptyImage = errors.New("imaging: empty image payload")

	// ErrTooLarge is returned when the payload exceeds the configured maximum.
	ErrTooLarge = errors.New("imaging: image exceeds maximum size")

	// ErrUnsupportedFormat is returned when the sniffed MIME type is not on
	// the allow-list (JPEG, PNG, GIF, WebP).
	ErrUnsupportedFormat = errors.New("imaging: unsupported image format")

	// ErrDecodeFailure is returned when a payload with an allowed MIME type
	// cannot be decoded.
	ErrDecodeFailure = errors.New("imaging: image decode failed")
)

// MIME types accepted for visual search uploads.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
)

var allowedMIME = map[string]bool{
	MIMEJPEG: true,
	MIMEPNG:  true,
	MIMEGIF:  true,
	MIMEWebP: true,
}

// Validate checks the payload size and sniffs its MIME type against the
// allow-list without decoding. maxBytes <= 0 means no size limit.
// Returns the sniffed MIME type on success.
func Validate(data []byte, maxBytes int64) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), maxBytes)
	}
	mime := http.DetectContentType(data)
	if !allowedMIME[mime] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	return mime, nil
}

// Decode decodes a validated payload into an image. The MIME type must come
// from Validate; an unlisted type is rejected rather than guessed at.
func Decode(data []byte, mime string) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	r := bytes.NewReader(data)
	switch mime {
	case MIMEJPEG:
		img, err = jpeg.Decode(r)
	case MIMEPNG:
		img, err = png.Decode(r)
	case MIMEGIF:
		img, err = gif.Decode(r)
	case MIMEWebP:
		img, err = webp.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return img, nil
}

// Resize scales img to width x height with bilinear interpolation, returning
// an RGBA image ready for tensor conversion.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
