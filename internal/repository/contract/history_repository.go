package contract

import (
	"context"

	"ai-consultation-be/internal/entity"
	"ai-consultation-be/internal/repository/specification"
)

// HistoryRepository is append-only: entries are never updated or deleted.
type HistoryRepository interface {
	Create(ctx context.Context, entry *entity.HistoryEntry) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.HistoryEntry, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
