package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // generated thumbnails may come back as JPEG
	_ "image/png"
	"strings"
)

// MIMETypePNG is the format every captured frame is encoded in.
const MIMETypePNG = "image/png"

// ErrInvalidDataURL is returned when a string is not a base64 data URL.
var ErrInvalidDataURL = errors.New("media: invalid data URL")

// EncodeDataURL builds a self-contained base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SplitDataURL returns the MIME type and the still-encoded base64 payload of a data URL.
func SplitDataURL(dataURL string) (mimeType, payload string, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", "", fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURL)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: missing payload separator", ErrInvalidDataURL)
	}
	mimeType, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", "", fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}
	if mimeType == "" {
		return "", "", fmt.Errorf("%w: missing MIME type", ErrInvalidDataURL)
	}
	return mimeType, payload, nil
}

// DecodeDataURL returns the MIME type and decoded bytes of a data URL.
func DecodeDataURL(dataURL string) (mimeType string, data []byte, err error) {
	mimeType, payload, err := SplitDataURL(dataURL)
	if err != nil {
		return "", nil, err
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	return mimeType, data, nil
}

// ImageSize decodes only the header of the image inside a data URL.
func ImageSize(dataURL string) (width, height int, err error) {
	_, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
