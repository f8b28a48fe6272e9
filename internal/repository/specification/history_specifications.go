package specification

import "gorm.io/gorm"

// OwnedBy restricts history rows to one subject.
type OwnedBy struct {
	UserId string
}

func (s OwnedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserId)
}

// NewestFirst orders by creation time, with id as the tie-breaker so equal
// timestamps still list deterministically.
type NewestFirst struct{}

func (s NewestFirst) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}
