package relay

import (
	"mime"
	"strings"
	"time"

	"ai-consultation-be/pkg/apperr"
	"ai-consultation-be/pkg/upload"
)

const DefaultMaxUploadBytes = 5 * 1024 * 1024

// Submission is what the user filled in. File is the raw upload; it is
// base64-encoded on the wire.
type Submission struct {
	PatientName string
	DateOfVisit string
	Notes       string
	File        []byte
	FileMime    string
}

// Validate runs the same checks the backend runs, before any network call.
func (s Submission) Validate(maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if strings.TrimSpace(s.PatientName) == "" {
		return apperr.New(apperr.ErrValidation, "patient_name is required")
	}
	if _, err := time.Parse("2006-01-02", s.DateOfVisit); err != nil {
		return apperr.New(apperr.ErrValidation, "date_of_visit must be a date in YYYY-MM-DD format")
	}

	if len(s.File) == 0 {
		if strings.TrimSpace(s.Notes) == "" {
			return apperr.New(apperr.ErrValidation, "Either notes or a file is required")
		}
		return nil
	}

	if len(s.File) > maxBytes {
		return apperr.New(apperr.ErrPayloadTooLarge, "File is too large")
	}
	mediaType, _, err := mime.ParseMediaType(s.FileMime)
	if err != nil {
		return apperr.New(apperr.ErrUnsupportedMediaType, "File type is required")
	}
	if mediaType != "application/pdf" && !upload.IsSupportedImage(mediaType) {
		return apperr.New(apperr.ErrUnsupportedMediaType, "Unsupported file type (PDF, PNG, JPEG, GIF or WebP required)")
	}
	return nil
}
