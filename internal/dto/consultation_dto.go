package dto

// ConsultationRequest is the body of POST /api/consultation. Either notes or a
// base64 file must be present.
type ConsultationRequest struct {
	PatientName string `json:"patient_name" validate:"required,max=255"`
	DateOfVisit string `json:"date_of_visit" validate:"required,datetime=2006-01-02"`
	Notes       string `json:"notes" validate:"required_without=FileBase64"`
	FileBase64  string `json:"file_base64,omitempty"`
	FileMime    string `json:"file_mime,omitempty" validate:"required_with=FileBase64"`
}

// ConsultationDone is the data of the terminal "done" event.
type ConsultationDone struct {
	Model  string `json:"model"`
	Chunks int    `json:"chunks"`
	Chars  int    `json:"chars"`
}

// ConsultationStreamError is the data of the terminal "error" event.
type ConsultationStreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ProfileResponse struct {
	UserId    string `json:"user_id"`
	Plan      string `json:"plan"`
	Premium   bool   `json:"premium"`
	Model     string `json:"model"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
