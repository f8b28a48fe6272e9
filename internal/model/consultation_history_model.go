package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConsultationHistory struct {
	Id          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId      string         `gorm:"type:varchar(255);not null;index:idx_consultation_history_user_created,priority:1"`
	PatientName string         `gorm:"type:varchar(255);not null"`
	DateOfVisit datatypes.Date `gorm:"not null"`
	Summary     string         `gorm:"type:text;not null"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index:idx_consultation_history_user_created,priority:2,sort:desc"`
}

func (ConsultationHistory) TableName() string {
	return "consultation_history"
}
