package mapper

import (
	"time"

	"ai-consultation-be/internal/entity"
	"ai-consultation-be/internal/model"

	"gorm.io/datatypes"
)

type HistoryMapper struct{}

func NewHistoryMapper() *HistoryMapper {
	return &HistoryMapper{}
}

func (m *HistoryMapper) ToEntity(h *model.ConsultationHistory) *entity.HistoryEntry {
	if h == nil {
		return nil
	}
	return &entity.HistoryEntry{
		Id:          h.Id,
		UserId:      h.UserId,
		PatientName: h.PatientName,
		DateOfVisit: time.Time(h.DateOfVisit),
		Summary:     h.Summary,
		CreatedAt:   h.CreatedAt,
	}
}

func (m *HistoryMapper) ToModel(e *entity.HistoryEntry) *model.ConsultationHistory {
	if e == nil {
		return nil
	}
	return &model.ConsultationHistory{
		Id:          e.Id,
		UserId:      e.UserId,
		PatientName: e.PatientName,
		DateOfVisit: datatypes.Date(e.DateOfVisit),
		Summary:     e.Summary,
		CreatedAt:   e.CreatedAt,
	}
}

func (m *HistoryMapper) ToEntities(rows []*model.ConsultationHistory) []*entity.HistoryEntry {
	entities := make([]*entity.HistoryEntry, len(rows))
	for i, h := range rows {
		entities[i] = m.ToEntity(h)
	}
	return entities
}
