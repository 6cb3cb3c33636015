package registry

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aegis-platform/aegis/internal/accesscache"
	"github.com/aegis-platform/aegis/internal/shared"
)

// RepositoryPort defines data access methods for the registries.
type RepositoryPort interface {
	FindResources(ctx context.Context, keys []ResourceKey) ([]Resource, error)
	UpsertResource(ctx context.Context, key ResourceKey) (Resource, error)
	UpsertResources(ctx context.Context, keys []ResourceKey) ([]Resource, error)
	GetResource(ctx context.Context, id int64) (Resource, error)
	SoftDeleteResource(ctx context.Context, id int64) (bool, error)
	FindOperations(ctx context.Context, keys []OperationKey) ([]Operation, error)
	UpsertOperation(ctx context.Context, key OperationKey) (Operation, error)
	GetOperation(ctx context.Context, id int64) (Operation, error)
	SoftDeleteOperation(ctx context.Context, id int64) (bool, error)
}

// CachePort is the slice of the access cache the registries use.
type CachePort interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration)
	Invalidate(ctx context.Context, keys ...string) error
}

// Service resolves identity tuples to stable ids, caching both presence and
// absence. Unknown tuples resolve to nil rather than erroring; the resolver
// decides what an unregistered key means.
type Service struct {
	repo  RepositoryPort
	cache CachePort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cache CachePort) *Service {
	return &Service{repo: repo, cache: cache}
}

// ResolveResources maps each requested tuple to its registered resource, or
// nil when unknown. Cache misses are fetched in one query.
func (s *Service) ResolveResources(ctx context.Context, keys []ResourceKey) (map[ResourceKey]*Resource, error) {
	out := make(map[ResourceKey]*Resource, len(keys))
	var misses []ResourceKey
	for _, key := range keys {
		if _, seen := out[key]; seen {
			continue
		}
		var cached *Resource
		if s.cache != nil && s.cache.GetJSON(ctx, resourceCacheKey(key), &cached) {
			out[key] = liveResource(cached)
			continue
		}
		out[key] = nil
		misses = append(misses, key)
	}
	if len(misses) == 0 {
		return out, nil
	}
	found, err := s.repo.FindResources(ctx, misses)
	if err != nil {
		return nil, err
	}
	byKey := make(map[ResourceKey]*Resource, len(found))
	for i := range found {
		res := found[i]
		byKey[ResourceKey{Type: res.Type, Data: res.Data, OwnerUserID: res.OwnerUserID, AppID: res.AppID}] = &res
	}
	for _, key := range misses {
		res := byKey[key]
		if s.cache != nil {
			s.cache.SetJSON(ctx, resourceCacheKey(key), res, 0)
		}
		out[key] = liveResource(res)
	}
	return out, nil
}

// EnsureResources resolves the given tuples, lazily registering any that are
// still unknown in one batched upsert.
func (s *Service) EnsureResources(ctx context.Context, keys []ResourceKey) (map[ResourceKey]*Resource, error) {
	out, err := s.ResolveResources(ctx, keys)
	if err != nil {
		return nil, err
	}
	var missing []ResourceKey
	seen := make(map[ResourceKey]struct{}, len(keys))
	for _, key := range keys {
		if out[key] != nil {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out, nil
	}
	created, err := s.repo.UpsertResources(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range created {
		res := created[i]
		key := ResourceKey{Type: res.Type, Data: res.Data, OwnerUserID: res.OwnerUserID, AppID: res.AppID}
		if s.cache != nil {
			s.cache.SetJSON(ctx, resourceCacheKey(key), &res, 0)
		}
		out[key] = liveResource(&res)
	}
	return out, nil
}

// RegisterResource pre-registers a resource tuple.
func (s *Service) RegisterResource(ctx context.Context, key ResourceKey) (Resource, error) {
	if key.Type == "" {
		return Resource{}, shared.NewValidationError("res_type", "must not be empty")
	}
	res, err := s.repo.UpsertResource(ctx, key)
	if err != nil {
		return Resource{}, err
	}
	if s.cache != nil {
		s.cache.SetJSON(ctx, resourceCacheKey(key), &res, 0)
	}
	return res, nil
}

// DeleteResource soft-deletes a resource and drops its cached entry.
func (s *Service) DeleteResource(ctx context.Context, id int64) error {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NewNotFoundError("resource", id)
		}
		return err
	}
	deleted, err := s.repo.SoftDeleteResource(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return shared.NewNotFoundError("resource", id)
	}
	if s.cache != nil {
		key := ResourceKey{Type: res.Type, Data: res.Data, OwnerUserID: res.OwnerUserID, AppID: res.AppID}
		return s.cache.Invalidate(ctx, resourceCacheKey(key))
	}
	return nil
}

// ResolveOperations maps each requested tuple to its registered operation,
// or nil when unknown.
func (s *Service) ResolveOperations(ctx context.Context, keys []OperationKey) (map[OperationKey]*Operation, error) {
	out := make(map[OperationKey]*Operation, len(keys))
	var misses []OperationKey
	for _, key := range keys {
		if _, seen := out[key]; seen {
			continue
		}
		var cached *Operation
		if s.cache != nil && s.cache.GetJSON(ctx, operationCacheKey(key), &cached) {
			out[key] = liveOperation(cached)
			continue
		}
		out[key] = nil
		misses = append(misses, key)
	}
	if len(misses) == 0 {
		return out, nil
	}
	found, err := s.repo.FindOperations(ctx, misses)
	if err != nil {
		return nil, err
	}
	byKey := make(map[OperationKey]*Operation, len(found))
	for i := range found {
		op := found[i]
		byKey[OperationKey{Key: op.Key, OwnerUserID: op.OwnerUserID, AppID: op.AppID}] = &op
	}
	for _, key := range misses {
		op := byKey[key]
		if s.cache != nil {
			s.cache.SetJSON(ctx, operationCacheKey(key), op, 0)
		}
		out[key] = liveOperation(op)
	}
	return out, nil
}

// RegisterOperation pre-registers an operation tuple.
func (s *Service) RegisterOperation(ctx context.Context, key OperationKey) (Operation, error) {
	if key.Key == "" {
		return Operation{}, shared.NewValidationError("op_key", "must not be empty")
	}
	op, err := s.repo.UpsertOperation(ctx, key)
	if err != nil {
		return Operation{}, err
	}
	if s.cache != nil {
		s.cache.SetJSON(ctx, operationCacheKey(key), &op, 0)
	}
	return op, nil
}

// DeleteOperation soft-deletes an operation and drops its cached entry.
func (s *Service) DeleteOperation(ctx context.Context, id int64) error {
	op, err := s.repo.GetOperation(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NewNotFoundError("operation", id)
		}
		return err
	}
	deleted, err := s.repo.SoftDeleteOperation(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return shared.NewNotFoundError("operation", id)
	}
	if s.cache != nil {
		key := OperationKey{Key: op.Key, OwnerUserID: op.OwnerUserID, AppID: op.AppID}
		return s.cache.Invalidate(ctx, operationCacheKey(key))
	}
	return nil
}

func resourceCacheKey(key ResourceKey) string {
	return accesscache.ResourceEntryKey(key.AppID, key.OwnerUserID, key.Type, key.Data)
}

func operationCacheKey(key OperationKey) string {
	return accesscache.OperationEntryKey(key.AppID, key.OwnerUserID, key.Key)
}

func liveResource(res *Resource) *Resource {
	if res == nil || !res.Status.Live() {
		return nil
	}
	return res
}

func liveOperation(op *Operation) *Operation {
	if op == nil || !op.Status.Live() {
		return nil
	}
	return op
}
