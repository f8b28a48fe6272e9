package service

import (
	"context"
	"errors"
	"time"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/entity"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/internal/repository/specification"
	"ai-consultation-be/internal/repository/unitofwork"
	"ai-consultation-be/pkg/apperr"
)

const dateLayout = "2006-01-02"

type IHistoryService interface {
	Append(ctx context.Context, userId string, req *dto.CreateHistoryRequest) (*dto.HistoryEntryResponse, error)
	List(ctx context.Context, userId string, req *dto.ListHistoryRequest) (*dto.ListHistoryResponse, error)
}

type historyService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
	logger           logger.ILogger
	now              func() time.Time
}

func NewHistoryService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	logger logger.ILogger,
) IHistoryService {
	return &historyService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
		logger:           logger,
		now:              time.Now,
	}
}

func (s *historyService) Append(ctx context.Context, userId string, req *dto.CreateHistoryRequest) (*dto.HistoryEntryResponse, error) {
	dateOfVisit, err := time.Parse(dateLayout, req.DateOfVisit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, "date_of_visit must be a date in YYYY-MM-DD format", err)
	}

	uow, err := s.uowFactory.NewUnitOfWork(ctx)
	if err != nil {
		return nil, err
	}

	entry := &entity.HistoryEntry{
		UserId:      userId,
		PatientName: req.PatientName,
		DateOfVisit: dateOfVisit,
		Summary:     req.Summary,
		CreatedAt:   s.now().UTC(),
	}
	if err := uow.Begin(ctx); err != nil {
		return nil, storeError("Failed to save history entry", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = uow.Rollback()
		}
	}()

	if err := uow.HistoryRepository().Create(ctx, entry); err != nil {
		return nil, storeError("Failed to save history entry", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, storeError("Failed to save history entry", err)
	}
	committed = true

	s.logger.Info("HISTORY", "History entry created", map[string]interface{}{
		"user_id":     userId,
		"entry_id":    entry.Id.String(),
		"summary_len": len(entry.Summary),
	})

	if s.publisherService != nil {
		event := dto.ConsultationEvent{
			Type:       dto.EventHistoryEntryCreated,
			UserId:     userId,
			EntryId:    entry.Id.String(),
			OccurredAt: entry.CreatedAt,
		}
		if err := s.publisherService.Publish(ctx, event); err != nil {
			s.logger.Warn("HISTORY", "Failed to publish history event", map[string]interface{}{"error": err.Error()})
		}
	}

	return toHistoryResponse(entry), nil
}

func (s *historyService) List(ctx context.Context, userId string, req *dto.ListHistoryRequest) (*dto.ListHistoryResponse, error) {
	if req == nil {
		req = &dto.ListHistoryRequest{}
	}

	uow, err := s.uowFactory.NewUnitOfWork(ctx)
	if err != nil {
		return nil, err
	}
	repo := uow.HistoryRepository()

	specs := []specification.Specification{
		specification.OwnedBy{UserId: userId},
		specification.NewestFirst{},
	}
	if req.Limit > 0 || req.Offset > 0 {
		limit := req.Limit
		if limit == 0 {
			limit = -1 // offset only
		}
		specs = append(specs, specification.Pagination{Limit: limit, Offset: req.Offset})
	}

	entries, err := repo.FindAll(ctx, specs...)
	if err != nil {
		return nil, storeError("Failed to load history", err)
	}

	total := int64(len(entries))
	if req.Limit > 0 || req.Offset > 0 {
		total, err = repo.Count(ctx, specification.OwnedBy{UserId: userId})
		if err != nil {
			return nil, storeError("Failed to count history", err)
		}
	}

	result := make([]*dto.HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, toHistoryResponse(e))
	}
	return &dto.ListHistoryResponse{History: result, Total: total}, nil
}

func toHistoryResponse(e *entity.HistoryEntry) *dto.HistoryEntryResponse {
	return &dto.HistoryEntryResponse{
		Id:          e.Id,
		PatientName: e.PatientName,
		DateOfVisit: e.DateOfVisit.Format(dateLayout),
		Summary:     e.Summary,
		CreatedAt:   e.CreatedAt,
	}
}

func storeError(message string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Wrap(apperr.ErrStoreUnavailable, message, err)
}
