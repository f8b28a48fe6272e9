package entity

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is an immutable, finished consultation summary owned by one
// subject.
type HistoryEntry struct {
	Id          uuid.UUID
	UserId      string
	PatientName string
	DateOfVisit time.Time
	Summary     string
	CreatedAt   time.Time
}
