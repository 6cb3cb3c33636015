package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aegis-platform/aegis/internal/shared"
)

type stubRepo struct {
	nextID      int64
	resources   map[ResourceKey]Resource
	operations  map[OperationKey]Operation
	findCalls   int
	upsertCalls int
}

func newStubRepo() *stubRepo {
	return &stubRepo{nextID: 1, resources: map[ResourceKey]Resource{}, operations: map[OperationKey]Operation{}}
}

func (s *stubRepo) FindResources(_ context.Context, keys []ResourceKey) ([]Resource, error) {
	s.findCalls++
	var out []Resource
	for _, key := range keys {
		if res, ok := s.resources[key]; ok {
			out = append(out, res)
		}
	}
	return out, nil
}

func (s *stubRepo) UpsertResource(_ context.Context, key ResourceKey) (Resource, error) {
	if res, ok := s.resources[key]; ok {
		return res, nil
	}
	res := Resource{ID: s.nextID, Type: key.Type, Data: key.Data, OwnerUserID: key.OwnerUserID, AppID: key.AppID, Status: shared.StatusEnable}
	s.nextID++
	s.resources[key] = res
	return res, nil
}

func (s *stubRepo) UpsertResources(ctx context.Context, keys []ResourceKey) ([]Resource, error) {
	s.upsertCalls++
	out := make([]Resource, 0, len(keys))
	for _, key := range keys {
		res, err := s.UpsertResource(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *stubRepo) GetResource(_ context.Context, id int64) (Resource, error) {
	for _, res := range s.resources {
		if res.ID == id {
			return res, nil
		}
	}
	return Resource{}, pgx.ErrNoRows
}

func (s *stubRepo) SoftDeleteResource(_ context.Context, id int64) (bool, error) {
	for key, res := range s.resources {
		if res.ID == id && res.Status.Live() {
			res.Status = shared.StatusDelete
			s.resources[key] = res
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) FindOperations(_ context.Context, keys []OperationKey) ([]Operation, error) {
	s.findCalls++
	var out []Operation
	for _, key := range keys {
		if op, ok := s.operations[key]; ok {
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *stubRepo) UpsertOperation(_ context.Context, key OperationKey) (Operation, error) {
	if op, ok := s.operations[key]; ok {
		return op, nil
	}
	op := Operation{ID: s.nextID, Key: key.Key, OwnerUserID: key.OwnerUserID, AppID: key.AppID, Status: shared.StatusEnable}
	s.nextID++
	s.operations[key] = op
	return op, nil
}

func (s *stubRepo) GetOperation(_ context.Context, id int64) (Operation, error) {
	for _, op := range s.operations {
		if op.ID == id {
			return op, nil
		}
	}
	return Operation{}, pgx.ErrNoRows
}

func (s *stubRepo) SoftDeleteOperation(_ context.Context, id int64) (bool, error) {
	for key, op := range s.operations {
		if op.ID == id && op.Status.Live() {
			op.Status = shared.StatusDelete
			s.operations[key] = op
			return true, nil
		}
	}
	return false, nil
}

// fakeCache is a JSON map standing in for Redis.
type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dest any) bool {
	payload, ok := c.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(payload, dest) == nil
}

func (c *fakeCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.entries[key] = payload
}

func (c *fakeCache) Invalidate(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func TestResolveResourcesCachesAbsence(t *testing.T) {
	repo := newStubRepo()
	cache := newFakeCache()
	svc := NewService(repo, cache)
	ctx := context.Background()

	key := ResourceKey{Type: "doc", Data: "1", OwnerUserID: 7, AppID: 1}
	out, err := svc.ResolveResources(ctx, []ResourceKey{key})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out[key] != nil {
		t.Fatalf("unknown key resolved to %+v", out[key])
	}
	if repo.findCalls != 1 {
		t.Fatalf("findCalls = %d, want 1", repo.findCalls)
	}

	// The negative entry is cached: a repeat resolve hits no DB.
	if _, err := svc.ResolveResources(ctx, []ResourceKey{key}); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if repo.findCalls != 1 {
		t.Fatalf("negative result not cached, findCalls = %d", repo.findCalls)
	}
}

func TestResolveResourcesBatchesMisses(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, newFakeCache())
	ctx := context.Background()

	k1 := ResourceKey{Type: "doc", Data: "1", OwnerUserID: 7, AppID: 1}
	k2 := ResourceKey{Type: "doc", Data: "2", OwnerUserID: 7, AppID: 1}
	if _, err := repo.UpsertResource(ctx, k1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	out, err := svc.ResolveResources(ctx, []ResourceKey{k1, k2, k1})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out[k1] == nil || out[k2] != nil {
		t.Fatalf("unexpected resolution %+v", out)
	}
	if repo.findCalls != 1 {
		t.Fatalf("misses not batched into one query, findCalls = %d", repo.findCalls)
	}
}

func TestEnsureResourcesCreatesUnknown(t *testing.T) {
	repo := newStubRepo()
	cache := newFakeCache()
	svc := NewService(repo, cache)
	ctx := context.Background()

	key := ResourceKey{Type: "doc", Data: "9", OwnerUserID: 7, AppID: 1}
	out, err := svc.EnsureResources(ctx, []ResourceKey{key})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if out[key] == nil {
		t.Fatal("unknown resource not created")
	}
	// The id is stable on repeat.
	again, err := svc.EnsureResources(ctx, []ResourceKey{key})
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if again[key].ID != out[key].ID {
		t.Fatalf("id changed: %d != %d", again[key].ID, out[key].ID)
	}
}

func TestEnsureResourcesBatchesInserts(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, newFakeCache())
	ctx := context.Background()

	keys := []ResourceKey{
		{Type: "doc", Data: "1", OwnerUserID: 7, AppID: 1},
		{Type: "doc", Data: "2", OwnerUserID: 7, AppID: 1},
		{Type: "doc", Data: "3", OwnerUserID: 7, AppID: 1},
	}
	out, err := svc.EnsureResources(ctx, append(keys, keys[0]))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, key := range keys {
		if out[key] == nil {
			t.Fatalf("key %+v not created", key)
		}
	}
	// All unknown tuples go through one multi-row upsert, duplicates folded.
	if repo.upsertCalls != 1 {
		t.Fatalf("upsertCalls = %d, want 1", repo.upsertCalls)
	}
}

func TestResolveOperationsDoesNotCreate(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, newFakeCache())
	ctx := context.Background()

	key := OperationKey{Key: "read", OwnerUserID: 7, AppID: 1}
	out, err := svc.ResolveOperations(ctx, []OperationKey{key})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out[key] != nil {
		t.Fatalf("unknown operation resolved to %+v", out[key])
	}
	if len(repo.operations) != 0 {
		t.Fatal("resolve must not register operations")
	}
}

func TestDeleteResourceHidesFromResolve(t *testing.T) {
	repo := newStubRepo()
	cache := newFakeCache()
	svc := NewService(repo, cache)
	ctx := context.Background()

	key := ResourceKey{Type: "doc", Data: "1", OwnerUserID: 7, AppID: 1}
	res, err := svc.RegisterResource(ctx, key)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.DeleteResource(ctx, res.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err := svc.ResolveResources(ctx, []ResourceKey{key})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out[key] != nil {
		t.Fatal("soft-deleted resource still resolves")
	}
	if err := svc.DeleteResource(ctx, res.ID); !shared.IsNotFound(err) {
		t.Fatalf("second delete: got %v, want not found", err)
	}
}

func TestRegisterValidatesEmptyKeys(t *testing.T) {
	svc := NewService(newStubRepo(), nil)
	ctx := context.Background()

	if _, err := svc.RegisterResource(ctx, ResourceKey{}); !shared.IsValidation(err) {
		t.Fatalf("empty resource type accepted: %v", err)
	}
	if _, err := svc.RegisterOperation(ctx, OperationKey{}); !shared.IsValidation(err) {
		t.Fatalf("empty operation key accepted: %v", err)
	}
}
