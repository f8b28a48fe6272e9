package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateHistoryRequest struct {
	PatientName string `json:"patient_name" validate:"required,max=255"`
	DateOfVisit string `json:"date_of_visit" validate:"required,datetime=2006-01-02"`
	Summary     string `json:"summary" validate:"required"`
}

type ListHistoryRequest struct {
	Limit  int `query:"limit" validate:"min=0,max=500"`
	Offset int `query:"offset" validate:"min=0"`
}

type HistoryEntryResponse struct {
	Id          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name"`
	DateOfVisit string    `json:"date_of_visit"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
}

type ListHistoryResponse struct {
	History []*HistoryEntryResponse `json:"history"`
	Total   int64                   `json:"total"`
}
