package unitofwork

import (
	"context"
	"errors"

	"ai-consultation-be/pkg/apperr"
	"ai-consultation-be/pkg/database"
)

type RepositoryFactoryImpl struct {
	connector *database.Connector
}

func NewRepositoryFactory(connector *database.Connector) RepositoryFactory {
	return &RepositoryFactoryImpl{
		connector: connector,
	}
}

func (f *RepositoryFactoryImpl) NewUnitOfWork(ctx context.Context) (UnitOfWork, error) {
	db, err := f.connector.DB(ctx)
	if err != nil {
		if errors.Is(err, database.ErrNotConfigured) {
			return nil, apperr.Wrap(apperr.ErrStoreUnavailable, "History store is not configured", err)
		}
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, "History store is unreachable", err)
	}
	return NewUnitOfWork(db), nil
}
