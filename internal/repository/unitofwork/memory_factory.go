package unitofwork

import (
	"context"

	"ai-consultation-be/internal/repository/contract"
	"ai-consultation-be/internal/repository/memory"
)

// MemoryFactory serves every unit of work from one in-process history
// repository. Transactions are no-ops.
type MemoryFactory struct {
	repo *memory.HistoryRepository
}

func NewMemoryFactory(repo *memory.HistoryRepository) *MemoryFactory {
	if repo == nil {
		repo = memory.NewHistoryRepository()
	}
	return &MemoryFactory{repo: repo}
}

func (f *MemoryFactory) NewUnitOfWork(ctx context.Context) (UnitOfWork, error) {
	return &memoryUnitOfWork{repo: f.repo}, nil
}

type memoryUnitOfWork struct {
	repo *memory.HistoryRepository
}

func (u *memoryUnitOfWork) Begin(ctx context.Context) error { return nil }
func (u *memoryUnitOfWork) Commit() error                   { return nil }
func (u *memoryUnitOfWork) Rollback() error                 { return nil }

func (u *memoryUnitOfWork) HistoryRepository() contract.HistoryRepository {
	return u.repo
}
