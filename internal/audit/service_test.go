package audit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type stubTimelineRepo struct {
	records     []Record
	items       map[int64][]ItemResult
	deleteCalls []int32
	perDelete   int64
}

func (s *stubTimelineRepo) PageRecords(ctx context.Context, filters TimelineFilters, offset, limit int32) ([]Record, error) {
	start := int(offset)
	if start >= len(s.records) {
		return nil, nil
	}
	end := start + int(limit)
	if end > len(s.records) {
		end = len(s.records)
	}
	out := make([]Record, end-start)
	copy(out, s.records[start:end])
	return out, nil
}

func (s *stubTimelineRepo) LoadItems(ctx context.Context, recordIDs []int64) (map[int64][]ItemResult, error) {
	out := make(map[int64][]ItemResult, len(recordIDs))
	for _, id := range recordIDs {
		out[id] = s.items[id]
	}
	return out, nil
}

func (s *stubTimelineRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	s.deleteCalls = append(s.deleteCalls, limit)
	n := s.perDelete
	s.perDelete = 0
	return n, nil
}

func seedTimelineRepo(n int) *stubTimelineRepo {
	repo := &stubTimelineRepo{items: make(map[int64][]ItemResult)}
	for i := 1; i <= n; i++ {
		id := int64(i)
		repo.records = append(repo.records, Record{ID: id, ViewerID: 7, Allowed: i%2 == 0})
		repo.items[id] = []ItemResult{{ResType: "doc", ResData: fmt.Sprint(i), OpKey: "read", Effect: EffectAllow}}
	}
	return repo
}

func TestTimelineProbesNextPage(t *testing.T) {
	svc := NewService(seedTimelineRepo(25))

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Records) != 20 {
		t.Fatalf("got %d records, want 20", len(result.Records))
	}
	if !result.Paging.HasNext {
		t.Fatal("expected a next page")
	}
	if len(result.Records[0].Items) != 1 {
		t.Fatalf("items not attached: %+v", result.Records[0])
	}

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	if err != nil {
		t.Fatalf("timeline page 2: %v", err)
	}
	if len(result.Records) != 5 || result.Paging.HasNext {
		t.Fatalf("got %d records hasNext=%v, want 5 without next", len(result.Records), result.Paging.HasNext)
	}
}

func TestTimelineClampsPaging(t *testing.T) {
	svc := NewService(seedTimelineRepo(60))

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 0, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.Page != 1 || result.Paging.PageSize != 50 {
		t.Fatalf("got page=%d size=%d, want 1/50", result.Paging.Page, result.Paging.PageSize)
	}
	if len(result.Records) != 50 {
		t.Fatalf("got %d records, want 50", len(result.Records))
	}
}

func TestPurgeOlderThanLoopsBatches(t *testing.T) {
	repo := seedTimelineRepo(0)
	repo.perDelete = 500
	svc := NewService(repo)

	total, err := svc.PurgeOlderThan(context.Background(), time.Unix(1_000_000, 0), 0)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	// First call removes a full default batch, second a short one.
	if total != 500 {
		t.Fatalf("got total %d, want 500", total)
	}
	if len(repo.deleteCalls) != 2 || repo.deleteCalls[0] != 500 {
		t.Fatalf("unexpected delete calls %v", repo.deleteCalls)
	}
}
