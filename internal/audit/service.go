package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/aegis-platform/aegis/internal/shared"
)

// RepositoryPort defines the queries the timeline service needs.
type RepositoryPort interface {
	PageRecords(ctx context.Context, filters TimelineFilters, offset, limit int32) ([]Record, error)
	LoadItems(ctx context.Context, recordIDs []int64) (map[int64][]ItemResult, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int32) (int64, error)
}

// Service coordinates audit timeline reads and retention.
type Service struct {
	repo RepositoryPort
}

// NewService builds a timeline service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline fetches a page of audit records with their item traces.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	page, pageSize := shared.ClampPage(filters.Page, filters.PageSize, 20, 50)
	offset := (page - 1) * pageSize

	// Fetch one extra row to learn whether a next page exists.
	records, err := s.repo.PageRecords(ctx, filters, int32(offset), int32(pageSize+1))
	if err != nil {
		return Result{}, err
	}
	hasNext := len(records) > pageSize
	if hasNext {
		records = records[:pageSize]
	}
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	items, err := s.repo.LoadItems(ctx, ids)
	if err != nil {
		return Result{}, err
	}
	for i := range records {
		records[i].Items = items[records[i].ID]
	}
	return Result{
		Records: records,
		Paging:  PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}

// PurgeOlderThan removes records past the retention cutoff in bounded
// batches and returns the total removed.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time, batch int32) (int64, error) {
	if batch <= 0 {
		batch = 500
	}
	var total int64
	for {
		n, err := s.repo.DeleteOlderThan(ctx, cutoff, batch)
		if err != nil {
			return total, err
		}
		total += n
		if n < int64(batch) {
			return total, nil
		}
	}
}
