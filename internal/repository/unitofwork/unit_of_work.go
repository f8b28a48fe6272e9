package unitofwork

import (
	"context"

	"ai-consultation-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	HistoryRepository() contract.HistoryRepository
}
