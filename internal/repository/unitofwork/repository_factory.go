package unitofwork

import "context"

// RepositoryFactory hands out short-lived units of work. It fails with
// apperr.ErrStoreUnavailable when the store is not configured or unreachable.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) (UnitOfWork, error)
}
