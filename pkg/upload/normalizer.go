// Package upload turns a client-submitted file into prompt material: plain
// text for PDFs, or a base64 payload for a vision-capable completion call.
package upload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"ai-consultation-be/pkg/apperr"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const DefaultMaxBytes = 5 * 1024 * 1024

// ImageTypes are the image formats vision models accept.
var ImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// IsSupportedImage reports whether mediaType, without parameters, is one of
// ImageTypes.
func IsSupportedImage(mediaType string) bool {
	for _, t := range ImageTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Payload is the normalized form of an upload.
type Payload struct {
	Kind     Kind
	Text     string
	MimeType string
	Base64   string
	Size     int
}

// DataURL is the form vision-capable chat APIs accept for inline images.
func (p *Payload) DataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Base64
}

// TextExtractor pulls plain text out of a PDF document.
type TextExtractor func(data []byte) (string, error)

type Normalizer struct {
	maxBytes   int
	extractPDF TextExtractor
}

type Option func(*Normalizer)

func WithTextExtractor(fn TextExtractor) Option {
	return func(n *Normalizer) {
		if fn != nil {
			n.extractPDF = fn
		}
	}
}

func NewNormalizer(maxBytes int, opts ...Option) *Normalizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	n := &Normalizer{
		maxBytes:   maxBytes,
		extractPDF: ExtractPDFText,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) MaxBytes() int {
	return n.maxBytes
}

// CheckSize rejects anything above the limit.
func (n *Normalizer) CheckSize(size int) error {
	if size > n.maxBytes {
		return apperr.New(apperr.ErrPayloadTooLarge,
			fmt.Sprintf("File is too large (%d bytes, limit %d bytes)", size, n.maxBytes))
	}
	return nil
}

// DecodeBase64 accepts raw base64 or a data URL. The encoded length is checked
// against the limit before anything is decoded.
func (n *Normalizer) DecodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ","); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}
	encoded = strings.TrimRight(strings.Join(strings.Fields(encoded), ""), "=")

	if err := n.CheckSize(base64.RawStdEncoding.DecodedLen(len(encoded))); err != nil {
		return nil, err
	}

	data, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrValidation, "File is not valid base64", err)
		}
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.ErrValidation, "File is empty")
	}
	return data, nil
}

// Normalize validates size and type, then produces extracted text for PDFs
// and an encoded payload for images.
func (n *Normalizer) Normalize(data []byte, declaredMime string) (*Payload, error) {
	if err := n.CheckSize(len(data)); err != nil {
		return nil, err
	}

	declared, err := baseMediaType(declaredMime)
	if err != nil {
		return nil, err
	}
	detected := mimetype.Detect(data)

	switch {
	case declared == "application/pdf" || strings.Contains(declared, "pdf"):
		if !detected.Is("application/pdf") {
			return nil, apperr.New(apperr.ErrUnsupportedMediaType, "File content is not a PDF")
		}
		text, err := n.extractPDF(data)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrValidation, "Unable to read PDF", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, apperr.New(apperr.ErrValidation, "PDF contains no extractable text")
		}
		return &Payload{
			Kind:     KindText,
			Text:     text,
			MimeType: "application/pdf",
			Size:     len(data),
		}, nil

	case IsSupportedImage(declared):
		contentType, _, _ := mime.ParseMediaType(detected.String())
		if !IsSupportedImage(contentType) {
			return nil, apperr.New(apperr.ErrUnsupportedMediaType,
				fmt.Sprintf("File content is not a supported image (%s)", strings.Join(ImageTypes, ", ")))
		}
		return &Payload{
			Kind:     KindImage,
			MimeType: contentType,
			Base64:   base64.StdEncoding.EncodeToString(data),
			Size:     len(data),
		}, nil

	default:
		return nil, apperr.New(apperr.ErrUnsupportedMediaType,
			fmt.Sprintf("Unsupported file type %q (PDF, PNG, JPEG, GIF or WebP required)", declared))
	}
}

func baseMediaType(declared string) (string, error) {
	declared = strings.TrimSpace(strings.ToLower(declared))
	if declared == "" {
		return "", apperr.New(apperr.ErrUnsupportedMediaType, "File type is required")
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrUnsupportedMediaType, "Invalid file type", err)
	}
	return mediaType, nil
}

// ExtractPDFText reads the text layer of every page. The pdf reader panics on
// some malformed inputs, so panics are turned into errors.
func ExtractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf: open: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf: page %d: %w", i, err)
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n"), nil
}
