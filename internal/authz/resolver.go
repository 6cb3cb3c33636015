package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aegis-platform/aegis/internal/accesscache"
	"github.com/aegis-platform/aegis/internal/audit"
	"github.com/aegis-platform/aegis/internal/registry"
	"github.com/aegis-platform/aegis/internal/roles"
	"github.com/aegis-platform/aegis/internal/shared"
)

// RegistryPort resolves identity tuples to registered ids.
type RegistryPort interface {
	EnsureResources(ctx context.Context, keys []registry.ResourceKey) (map[registry.ResourceKey]*registry.Resource, error)
	ResolveOperations(ctx context.Context, keys []registry.OperationKey) (map[registry.OperationKey]*registry.Operation, error)
}

// LookupPort provides the candidate queries of the role store.
type LookupPort interface {
	PublicGlobal(ctx context.Context, userRange roles.UserRange) ([]roles.Candidate, error)
	PublicByOps(ctx context.Context, userRange roles.UserRange, opIDs []int64) ([]roles.Candidate, error)
	PublicByOwners(ctx context.Context, userRange roles.UserRange, ownerIDs []int64) ([]roles.Candidate, error)
	RelationCandidates(ctx context.Context, ownerUserID int64, relationKey string) ([]roles.Candidate, error)
	UserGlobal(ctx context.Context, viewerID int64, now time.Time) ([]roles.Candidate, error)
	UserByOps(ctx context.Context, viewerID int64, opIDs []int64, now time.Time) ([]roles.Candidate, error)
	UserByOwners(ctx context.Context, viewerID int64, ownerIDs []int64, now time.Time) ([]roles.Candidate, error)
}

// CachePort is the slice of the access cache the resolver consults.
type CachePort interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration)
}

// AuditPort receives the decision trace of every check.
type AuditPort interface {
	Record(rec audit.Record)
}

// MetricsRecorder receives per-check outcome counters.
type MetricsRecorder interface {
	CheckCompleted(outcome string, elapsed time.Duration)
}

// Config carries the resolver policy knobs.
type Config struct {
	// RootUsers bypass every rule with an Allow at maximum priority.
	RootUsers []int64
	// SelfBypass lets owners reach their own resources with the weakest
	// possible Allow, so any explicit Deny still wins.
	SelfBypass bool
}

// Resolver answers access checks. It is stateless per call apart from the
// shared cache and safe for concurrent use.
type Resolver struct {
	registry   RegistryPort
	lookup     LookupPort
	cache      CachePort
	audit      AuditPort
	metrics    MetricsRecorder
	logger     *slog.Logger
	roots      map[int64]struct{}
	selfBypass bool
	now        func() time.Time
}

// NewResolver builds a Resolver instance.
func NewResolver(reg RegistryPort, lookup LookupPort, cache CachePort, auditSink AuditPort, metrics MetricsRecorder, logger *slog.Logger, cfg Config) *Resolver {
	roots := make(map[int64]struct{}, len(cfg.RootUsers))
	for _, id := range cfg.RootUsers {
		roots[id] = struct{}{}
	}
	return &Resolver{
		registry:   reg,
		lookup:     lookup,
		cache:      cache,
		audit:      auditSink,
		metrics:    metrics,
		logger:     logger,
		roots:      roots,
		selfBypass: cfg.SelfBypass,
		now:        time.Now,
	}
}

// checkPair is one (resource, operation) decision to make.
type checkPair struct {
	item     CheckItem
	res      *registry.Resource
	opKey    string
	op       *registry.Operation
	optional bool
}

// Check authorizes every (resource, operation) pair in the batch. It returns
// nil when everything is allowed; otherwise the error lists every refused
// pair, so the caller learns all missing grants in one round trip. Resources
// are registered lazily; unknown mandatory operations deny, unknown optional
// operations pass.
func (r *Resolver) Check(ctx context.Context, viewerID int64, relations []Relation, items []CheckItem) error {
	start := r.now()
	if len(items) == 0 {
		return nil
	}

	resources, err := r.resolveResources(ctx, items)
	if err != nil {
		return err
	}
	pairs, err := r.resolvePairs(ctx, items, resources)
	if err != nil {
		return err
	}

	if _, ok := r.roots[viewerID]; ok {
		results := make([]audit.ItemResult, 0, len(pairs))
		for _, pair := range pairs {
			results = append(results, audit.ItemResult{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				Effect: audit.EffectAllow, Source: string(SourceRoot), Priority: roles.PriorityMax,
			})
		}
		r.finish(ctx, viewerID, relations, results, start, nil)
		return nil
	}

	gathered, err := r.gather(ctx, viewerID, relations, pairs)
	if err != nil {
		return err
	}

	now := r.now()
	results := make([]audit.ItemResult, 0, len(pairs))
	var blocked, unauthorized []shared.DeniedItem
	for _, pair := range pairs {
		if pair.op == nil {
			if pair.optional {
				results = append(results, audit.ItemResult{
					ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
					Effect: audit.EffectSkip, Source: string(SourceNone), Reason: "operation not registered",
				})
				continue
			}
			unauthorized = append(unauthorized, shared.DeniedItem{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				Reason: "operation not registered",
			})
			results = append(results, audit.ItemResult{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				Effect: audit.EffectDeny, Source: string(SourceNone), Reason: "operation not registered",
			})
			continue
		}

		best := r.decide(viewerID, pair, gathered, now)
		switch {
		case !best.ok:
			unauthorized = append(unauthorized, shared.DeniedItem{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				Reason: "unauthorized",
			})
			results = append(results, audit.ItemResult{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				Effect: audit.EffectDeny, Source: string(SourceNone), Reason: "unauthorized",
			})
		case best.positivity == roles.PositivityDeny:
			blocked = append(blocked, shared.DeniedItem{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				RoleID: best.roleID, Reason: "blocked",
			})
			results = append(results, audit.ItemResult{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				Effect: audit.EffectDeny, Source: string(best.source), RoleID: best.roleID,
				Priority: best.priority, Reason: "blocked",
			})
		default:
			results = append(results, audit.ItemResult{
				ResType: pair.item.ResType, ResData: pair.item.ResData, OpKey: pair.opKey,
				Effect: audit.EffectAllow, Source: string(best.source), RoleID: best.roleID,
				Priority: best.priority,
			})
		}
	}

	var outcome error
	switch {
	case len(blocked) > 0:
		outcome = &shared.BlockedError{Items: append(blocked, unauthorized...)}
	case len(unauthorized) > 0:
		outcome = &shared.UnauthorizedError{Items: unauthorized}
	}
	r.finish(ctx, viewerID, relations, results, start, outcome)
	return outcome
}

// gathered holds the candidate rows of all sources for one check batch.
type gathered struct {
	public   []roles.Candidate
	relation []roles.Candidate
	user     []roles.Candidate
}

// decide reduces every applicable candidate to the winning verdict for one
// pair. Self-bypass enters the merge at minimum priority so an explicit Deny
// anywhere still wins.
func (r *Resolver) decide(viewerID int64, pair checkPair, g *gathered, now time.Time) verdict {
	var best verdict
	if r.selfBypass && viewerID > 0 && viewerID == pair.res.OwnerUserID {
		best = merge(best, verdict{source: SourceSelf, priority: roles.PriorityMin, positivity: roles.PositivityAllow, ok: true})
	}
	for _, c := range g.public {
		if c.UserRange == roles.UserRangeLogin && viewerID <= 0 {
			continue
		}
		if applies(c, pair.res, pair.op.ID) {
			best = merge(best, candidateVerdict(SourcePublic, c))
		}
	}
	for _, c := range g.relation {
		if applies(c, pair.res, pair.op.ID) {
			best = merge(best, candidateVerdict(SourceRelation, c))
		}
	}
	nowUnix := now.Unix()
	for _, c := range g.user {
		if c.Timeout != 0 && c.Timeout <= nowUnix {
			continue
		}
		if applies(c, pair.res, pair.op.ID) {
			best = merge(best, candidateVerdict(SourceUserGrant, c))
		}
	}
	return best
}

func (r *Resolver) resolveResources(ctx context.Context, items []CheckItem) (map[registry.ResourceKey]*registry.Resource, error) {
	keys := make([]registry.ResourceKey, 0, len(items))
	for _, item := range items {
		if item.ResType == "" {
			return nil, shared.NewValidationError("res_type", "must not be empty")
		}
		keys = append(keys, registry.ResourceKey{
			Type: item.ResType, Data: item.ResData, OwnerUserID: item.OwnerUserID, AppID: item.AppID,
		})
	}
	resources, err := r.registry.EnsureResources(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("authz: resolve resources: %w", err)
	}
	return resources, nil
}

func (r *Resolver) resolvePairs(ctx context.Context, items []CheckItem, resources map[registry.ResourceKey]*registry.Resource) ([]checkPair, error) {
	var opKeys []registry.OperationKey
	for _, item := range items {
		for _, op := range item.Ops {
			opKeys = append(opKeys, registry.OperationKey{Key: op, OwnerUserID: item.OwnerUserID, AppID: item.AppID})
		}
		for _, op := range item.OptionalOps {
			opKeys = append(opKeys, registry.OperationKey{Key: op, OwnerUserID: item.OwnerUserID, AppID: item.AppID})
		}
	}
	ops, err := r.registry.ResolveOperations(ctx, opKeys)
	if err != nil {
		return nil, fmt.Errorf("authz: resolve operations: %w", err)
	}

	var pairs []checkPair
	for _, item := range items {
		res := resources[registry.ResourceKey{
			Type: item.ResType, Data: item.ResData, OwnerUserID: item.OwnerUserID, AppID: item.AppID,
		}]
		if res == nil {
			return nil, shared.NewValidationError("res_type", "resource could not be registered")
		}
		for _, op := range item.Ops {
			pairs = append(pairs, checkPair{
				item: item, res: res, opKey: op,
				op: ops[registry.OperationKey{Key: op, OwnerUserID: item.OwnerUserID, AppID: item.AppID}],
			})
		}
		for _, op := range item.OptionalOps {
			pairs = append(pairs, checkPair{
				item: item, res: res, opKey: op, optional: true,
				op: ops[registry.OperationKey{Key: op, OwnerUserID: item.OwnerUserID, AppID: item.AppID}],
			})
		}
	}
	return pairs, nil
}

// gather runs the cacheable sub-queries of all candidate sources
// concurrently, one round trip per key family for the whole batch.
func (r *Resolver) gather(ctx context.Context, viewerID int64, relations []Relation, pairs []checkPair) (*gathered, error) {
	opSet := make(map[int64]struct{})
	ownerSet := make(map[int64]struct{})
	for _, pair := range pairs {
		if pair.op != nil {
			opSet[pair.op.ID] = struct{}{}
		}
		ownerSet[pair.res.OwnerUserID] = struct{}{}
	}
	opIDs := make([]int64, 0, len(opSet))
	for id := range opSet {
		opIDs = append(opIDs, id)
	}
	ownerIDs := make([]int64, 0, len(ownerSet))
	for id := range ownerSet {
		ownerIDs = append(ownerIDs, id)
	}

	out := &gathered{}
	var mu sync.Mutex
	addPublic := func(rows []roles.Candidate) {
		mu.Lock()
		out.public = append(out.public, rows...)
		mu.Unlock()
	}

	publicRanges := []roles.UserRange{roles.UserRangeGuest}
	if viewerID > 0 {
		publicRanges = append(publicRanges, roles.UserRangeLogin)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ur := range publicRanges {
		g.Go(func() error {
			rows, err := r.cachedList(gctx, accesscache.PublicGlobalKey(int16(ur)), func(ctx context.Context) ([]roles.Candidate, error) {
				return r.lookup.PublicGlobal(ctx, ur)
			})
			if err != nil {
				return err
			}
			addPublic(rows)
			return nil
		})
		g.Go(func() error {
			rows, err := r.cachedPerID(gctx, opIDs,
				func(id int64) string { return accesscache.PublicResKey(int16(ur), id) },
				func(ctx context.Context, missing []int64) ([]roles.Candidate, error) {
					return r.lookup.PublicByOps(ctx, ur, missing)
				},
				func(c roles.Candidate) int64 { return c.OpID })
			if err != nil {
				return err
			}
			addPublic(rows)
			return nil
		})
		g.Go(func() error {
			rows, err := r.cachedPerID(gctx, ownerIDs,
				func(id int64) string { return accesscache.PublicResUserKey(int16(ur), id) },
				func(ctx context.Context, missing []int64) ([]roles.Candidate, error) {
					return r.lookup.PublicByOwners(ctx, ur, missing)
				},
				func(c roles.Candidate) int64 { return c.OwnerUserID })
			if err != nil {
				return err
			}
			addPublic(rows)
			return nil
		})
	}

	for _, rel := range relations {
		if rel.RelationKey == "" {
			continue
		}
		g.Go(func() error {
			rows, err := r.cachedList(gctx, accesscache.RelationKey(rel.OwnerUserID, rel.RelationKey), func(ctx context.Context) ([]roles.Candidate, error) {
				return r.lookup.RelationCandidates(ctx, rel.OwnerUserID, rel.RelationKey)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			out.relation = append(out.relation, rows...)
			mu.Unlock()
			return nil
		})
	}

	if viewerID > 0 {
		addUser := func(rows []roles.Candidate) {
			mu.Lock()
			out.user = append(out.user, rows...)
			mu.Unlock()
		}
		g.Go(func() error {
			rows, err := r.cachedList(gctx, accesscache.UserGlobalKey(viewerID), func(ctx context.Context) ([]roles.Candidate, error) {
				return r.lookup.UserGlobal(ctx, viewerID, r.now())
			})
			if err != nil {
				return err
			}
			addUser(rows)
			return nil
		})
		g.Go(func() error {
			rows, err := r.cachedPerID(gctx, opIDs,
				func(id int64) string { return accesscache.UserResKey(viewerID, id) },
				func(ctx context.Context, missing []int64) ([]roles.Candidate, error) {
					return r.lookup.UserByOps(ctx, viewerID, missing, r.now())
				},
				func(c roles.Candidate) int64 { return c.OpID })
			if err != nil {
				return err
			}
			addUser(rows)
			return nil
		})
		g.Go(func() error {
			rows, err := r.cachedPerID(gctx, ownerIDs,
				func(id int64) string { return accesscache.UserResUserKey(viewerID, id) },
				func(ctx context.Context, missing []int64) ([]roles.Candidate, error) {
					return r.lookup.UserByOwners(ctx, viewerID, missing, r.now())
				},
				func(c roles.Candidate) int64 { return c.OwnerUserID })
			if err != nil {
				return err
			}
			addUser(rows)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("authz: gather candidates: %w", err)
	}
	return out, nil
}

// cachedList serves one whole-family key from cache, loading and caching on
// a miss. Absence is cached as an empty list.
func (r *Resolver) cachedList(ctx context.Context, key string, load func(context.Context) ([]roles.Candidate, error)) ([]roles.Candidate, error) {
	if r.cache != nil {
		var rows []roles.Candidate
		if r.cache.GetJSON(ctx, key, &rows) {
			return rows, nil
		}
	}
	rows, err := load(ctx)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, rows)
	return rows, nil
}

// cachedPerID serves a per-id key family, batching every missing id into one
// loader query.
func (r *Resolver) cachedPerID(ctx context.Context, ids []int64, keyFn func(int64) string,
	load func(context.Context, []int64) ([]roles.Candidate, error), idOf func(roles.Candidate) int64) ([]roles.Candidate, error) {
	var out []roles.Candidate
	var missing []int64
	for _, id := range ids {
		if r.cache != nil {
			var rows []roles.Candidate
			if r.cache.GetJSON(ctx, keyFn(id), &rows) {
				out = append(out, rows...)
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	rows, err := load(ctx, missing)
	if err != nil {
		return nil, err
	}
	grouped := make(map[int64][]roles.Candidate, len(missing))
	for _, c := range rows {
		grouped[idOf(c)] = append(grouped[idOf(c)], c)
	}
	for _, id := range missing {
		r.store(ctx, keyFn(id), grouped[id])
		out = append(out, grouped[id]...)
	}
	return out, nil
}

// store caches a candidate list under key. The TTL is bounded by the soonest
// grant expiry among the rows so a cached decision never outlives a grant;
// rows already at expiry are served but not cached.
func (r *Resolver) store(ctx context.Context, key string, rows []roles.Candidate) {
	if r.cache == nil {
		return
	}
	soonest := int64(0)
	for _, c := range rows {
		if c.Timeout != 0 && (soonest == 0 || c.Timeout < soonest) {
			soonest = c.Timeout
		}
	}
	ttl, ok := accesscache.TTLForExpiry(soonest, r.now())
	if !ok {
		return
	}
	if rows == nil {
		rows = []roles.Candidate{}
	}
	r.cache.SetJSON(ctx, key, rows, ttl)
}

func (r *Resolver) finish(ctx context.Context, viewerID int64, relations []Relation, results []audit.ItemResult, start time.Time, outcome error) {
	checkID := uuid.NewString()
	if r.audit != nil {
		rels := make([]string, 0, len(relations))
		for _, rel := range relations {
			rels = append(rels, fmt.Sprintf("%d:%s", rel.OwnerUserID, rel.RelationKey))
		}
		meta := shared.MetaFromContext(ctx)
		r.audit.Record(audit.Record{
			CheckID:   checkID,
			ViewerID:  viewerID,
			Relations: rels,
			Allowed:   outcome == nil,
			TokenFP:   meta.TokenFP,
			Device:    meta.Device,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Items:     results,
			CreatedAt: r.now(),
		})
	}
	if r.metrics != nil {
		label := "allow"
		switch outcome.(type) {
		case *shared.BlockedError:
			label = "blocked"
		case *shared.UnauthorizedError:
			label = "unauthorized"
		}
		r.metrics.CheckCompleted(label, r.now().Sub(start))
	}
	if outcome != nil && r.logger != nil {
		r.logger.InfoContext(ctx, "access denied",
			slog.String("check_id", checkID),
			slog.Int64("viewer_id", viewerID),
			slog.String("reason", outcome.Error()))
	}
}
