// Package summary builds the consultation prompt, picks the model tier and
// pumps a streamed completion to a sink.
package summary

import (
	"fmt"
	"strings"

	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/upload"
)

const SystemPrompt = `You are provided with notes written by a doctor from a patient's visit.
Your job is to summarize the visit for the doctor and provide an email.
Reply with exactly three sections with the headings:
### Summary of visit for the doctor's records
### Next steps for the doctor
### Draft of email to patient in patient-friendly language`

const (
	fileSeparator    = "--- From file ---"
	imagePlaceholder = "(see attached image)"
)

// TranscriptionPrompt asks a vision model for the text in an image, used
// when images are transcribed before summarizing.
const TranscriptionPrompt = "Extract all text visible in this image. If it contains handwritten or typed medical or consultation notes, transcribe them exactly. Return only the extracted text, no commentary."

// ImageMode decides how an uploaded image reaches the summary model.
type ImageMode string

const (
	// ImageModeVision attaches the image to the summary request.
	ImageModeVision ImageMode = "vision"
	// ImageModeTranscribe extracts the image text first and summarizes it
	// like a PDF.
	ImageModeTranscribe ImageMode = "transcribe"
)

func ParseImageMode(s string) ImageMode {
	if ImageMode(strings.ToLower(strings.TrimSpace(s))) == ImageModeTranscribe {
		return ImageModeTranscribe
	}
	return ImageModeVision
}

// TranscriptionMessages is the single user turn that asks for the text of
// an image payload.
func TranscriptionMessages(img *upload.Payload) []llm.Message {
	return []llm.Message{{
		Role:    llm.RoleUser,
		Content: TranscriptionPrompt,
		Images:  []llm.Image{{MimeType: img.MimeType, Data: img.Base64}},
	}}
}

// Precedence decides how notes and an uploaded file are combined.
type Precedence string

const (
	// PrecedenceFile lets the file alone drive the prompt body when present.
	PrecedenceFile Precedence = "file"
	// PrecedenceCombine keeps the notes and appends the file content.
	PrecedenceCombine Precedence = "combine"
)

func ParsePrecedence(s string) Precedence {
	if Precedence(strings.ToLower(strings.TrimSpace(s))) == PrecedenceCombine {
		return PrecedenceCombine
	}
	return PrecedenceFile
}

type Input struct {
	PatientName string
	DateOfVisit string
	Notes       string
	File        *upload.Payload
}

func UserPrompt(patientName, dateOfVisit, body string) string {
	return fmt.Sprintf("Create the summary, next steps and draft email for:\nPatient Name: %s\nDate of Visit: %s\nNotes:\n%s",
		patientName, dateOfVisit, body)
}

// Body is the text placed under "Notes:". Notes are kept verbatim.
func Body(in Input, precedence Precedence) string {
	if in.File == nil {
		return in.Notes
	}

	fileText := imagePlaceholder
	if in.File.Kind == upload.KindText {
		fileText = in.File.Text
	}

	notes := strings.TrimSpace(in.Notes)
	if precedence == PrecedenceCombine && notes != "" {
		return in.Notes + "\n\n" + fileSeparator + "\n" + fileText
	}
	return fileText
}

// BuildMessages returns the system and user messages. An image upload is
// attached to the user message as a vision part.
func BuildMessages(in Input, precedence Precedence) []llm.Message {
	user := llm.Message{
		Role:    llm.RoleUser,
		Content: UserPrompt(in.PatientName, in.DateOfVisit, Body(in, precedence)),
	}
	if in.File != nil && in.File.Kind == upload.KindImage {
		user.Images = []llm.Image{{MimeType: in.File.MimeType, Data: in.File.Base64}}
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		user,
	}
}
