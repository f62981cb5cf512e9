package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDataURL_EncodeDecode(t *testing.T) {
	data := encodePNG(t, 4, 3)

	url := EncodeDataURL(MIMETypePNG, data)
	assert.Regexp(t, `^data:image/png;base64,`, url)

	mimeType, decoded, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, mimeType)
	assert.Equal(t, data, decoded)
}

func TestSplitDataURL(t *testing.T) {
	mimeType, payload, err := SplitDataURL("data:image/jpeg;base64,QUJD")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, "QUJD", payload)
}

func TestDecodeDataURL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no prefix", "image/png;base64,QUJD"},
		{"no comma", "data:image/png;base64"},
		{"not base64 encoded", "data:text/plain,hello"},
		{"missing mime", "data:;base64,QUJD"},
		{"bad payload", "data:image/png;base64,***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeDataURL(tt.in)
			assert.ErrorIs(t, err, ErrInvalidDataURL)
		})
	}
}

func TestImageSize(t *testing.T) {
	url := EncodeDataURL(MIMETypePNG, encodePNG(t, 64, 36))

	w, h, err := ImageSize(url)
	require.NoError(t, err)
	assert.Equal(t, 64, w)
	assert.Equal(t, 36, h)

	_, _, err = ImageSize(EncodeDataURL(MIMETypePNG, []byte("not an image")))
	assert.Error(t, err)
}
