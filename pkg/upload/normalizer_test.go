package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"ai-consultation-be/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func fakePDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
}

func TestNormalizer_Normalize(t *testing.T) {
	var extractorCalls int
	extractor := func(data []byte) (string, error) {
		extractorCalls++
		return "  BP 120/80\nno complaints  ", nil
	}
	n := NewNormalizer(DefaultMaxBytes, WithTextExtractor(extractor))

	t.Run("pdf becomes text", func(t *testing.T) {
		p, err := n.Normalize(fakePDF(), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, KindText, p.Kind)
		assert.Equal(t, "BP 120/80\nno complaints", p.Text)
		assert.Empty(t, p.Base64)
	})

	t.Run("image becomes base64 payload", func(t *testing.T) {
		p, err := n.Normalize(pngHeader, "image/png")
		require.NoError(t, err)
		assert.Equal(t, KindImage, p.Kind)
		assert.Equal(t, "image/png", p.MimeType)
		assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), p.Base64)
		assert.Equal(t, "data:image/png;base64,"+p.Base64, p.DataURL())
	})

	t.Run("declared image with jpeg parameter", func(t *testing.T) {
		p, err := n.Normalize(pngHeader, "image/jpeg; charset=binary")
		require.NoError(t, err)
		assert.Equal(t, "image/png", p.MimeType)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := n.Normalize([]byte("hello"), "text/plain")
		assert.ErrorIs(t, err, apperr.ErrUnsupportedMediaType)
	})

	t.Run("only common image formats", func(t *testing.T) {
		gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
		p, err := n.Normalize(gif, "image/gif")
		require.NoError(t, err)
		assert.Equal(t, "image/gif", p.MimeType)

		for _, declared := range []string{"image/svg+xml", "image/tiff", "image/bmp", "image/x-icon"} {
			_, err := n.Normalize(pngHeader, declared)
			assert.ErrorIs(t, err, apperr.ErrUnsupportedMediaType, declared)
		}
	})

	t.Run("declared png but content is svg", func(t *testing.T) {
		svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"></svg>`)
		_, err := n.Normalize(svg, "image/png")
		assert.ErrorIs(t, err, apperr.ErrUnsupportedMediaType)
	})

	t.Run("declared pdf but content is an image", func(t *testing.T) {
		_, err := n.Normalize(pngHeader, "application/pdf")
		assert.ErrorIs(t, err, apperr.ErrUnsupportedMediaType)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := n.Normalize(pngHeader, "")
		assert.ErrorIs(t, err, apperr.ErrUnsupportedMediaType)
	})
}

func TestNormalizer_RejectsOversizeBeforeExtraction(t *testing.T) {
	called := false
	n := NewNormalizer(DefaultMaxBytes, WithTextExtractor(func([]byte) (string, error) {
		called = true
		return "text", nil
	}))

	big := append(fakePDF(), bytes.Repeat([]byte{' '}, 6*1024*1024)...)
	_, err := n.Normalize(big, "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrPayloadTooLarge)
	assert.False(t, called)

	_, err = n.DecodeBase64(base64.StdEncoding.EncodeToString(big))
	assert.ErrorIs(t, err, apperr.ErrPayloadTooLarge)
}

func TestNormalizer_EmptyPDFText(t *testing.T) {
	n := NewNormalizer(0, WithTextExtractor(func([]byte) (string, error) { return " \n ", nil }))
	_, err := n.Normalize(fakePDF(), "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	n = NewNormalizer(0, WithTextExtractor(func([]byte) (string, error) { return "", errors.New("boom") }))
	_, err = n.Normalize(fakePDF(), "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNormalizer_DecodeBase64(t *testing.T) {
	n := NewNormalizer(0)
	raw := []byte("consultation")
	encoded := base64.StdEncoding.EncodeToString(raw)

	for name, input := range map[string]string{
		"plain":    encoded,
		"data url": "data:application/pdf;base64," + encoded,
		"wrapped":  encoded[:8] + "\n" + encoded[8:],
	} {
		t.Run(name, func(t *testing.T) {
			got, err := n.DecodeBase64(input)
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		})
	}

	_, err := n.DecodeBase64("!!!not base64!!!")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = n.DecodeBase64("")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestExtractPDFText_Malformed(t *testing.T) {
	_, err := ExtractPDFText([]byte("%PDF-1.4 garbage"))
	assert.Error(t, err)
}
