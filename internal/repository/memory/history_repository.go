package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-consultation-be/internal/entity"
	"ai-consultation-be/internal/repository/contract"
	"ai-consultation-be/internal/repository/specification"

	"github.com/google/uuid"
)

// HistoryRepository keeps entries in process memory. It understands the
// history specifications (OwnedBy, NewestFirst, Pagination) and ignores others.
type HistoryRepository struct {
	mu      sync.RWMutex
	entries []*entity.HistoryEntry
	now     func() time.Time
}

var _ contract.HistoryRepository = (*HistoryRepository)(nil)

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{now: time.Now}
}

func (r *HistoryRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.Id == uuid.Nil {
		entry.Id = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	stored := *entry
	r.entries = append(r.entries, &stored)
	return nil
}

func (r *HistoryRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		owner     *string
		newest    bool
		page      *specification.Pagination
		collected []*entity.HistoryEntry
	)
	for _, spec := range specs {
		switch s := spec.(type) {
		case specification.OwnedBy:
			owner = &s.UserId
		case specification.NewestFirst:
			newest = true
		case specification.Pagination:
			page = &s
		}
	}

	for _, e := range r.entries {
		if owner != nil && e.UserId != *owner {
			continue
		}
		c := *e
		collected = append(collected, &c)
	}

	if newest {
		sort.SliceStable(collected, func(i, j int) bool {
			if collected[i].CreatedAt.Equal(collected[j].CreatedAt) {
				return collected[i].Id.String() > collected[j].Id.String()
			}
			return collected[i].CreatedAt.After(collected[j].CreatedAt)
		})
	}

	if page != nil {
		if page.Offset >= len(collected) {
			return []*entity.HistoryEntry{}, nil
		}
		if page.Offset > 0 {
			collected = collected[page.Offset:]
		}
		if page.Limit >= 0 && page.Limit < len(collected) {
			collected = collected[:page.Limit]
		}
	}
	if collected == nil {
		collected = []*entity.HistoryEntry{}
	}
	return collected, nil
}

func (r *HistoryRepository) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var filters []specification.Specification
	for _, spec := range specs {
		if _, ok := spec.(specification.OwnedBy); ok {
			filters = append(filters, spec)
		}
	}
	entries, err := r.FindAll(ctx, filters...)
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}
