package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aegis-platform/aegis/internal/audit"
	"github.com/aegis-platform/aegis/internal/registry"
	"github.com/aegis-platform/aegis/internal/roles"
	"github.com/aegis-platform/aegis/internal/shared"
)

type stubRegistry struct {
	nextID     int64
	resources  map[registry.ResourceKey]*registry.Resource
	operations map[registry.OperationKey]*registry.Operation
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		nextID:     1,
		resources:  map[registry.ResourceKey]*registry.Resource{},
		operations: map[registry.OperationKey]*registry.Operation{},
	}
}

func (s *stubRegistry) addResource(key registry.ResourceKey) *registry.Resource {
	res := &registry.Resource{
		ID: s.nextID, Type: key.Type, Data: key.Data,
		OwnerUserID: key.OwnerUserID, AppID: key.AppID, Status: shared.StatusEnable,
	}
	s.nextID++
	s.resources[key] = res
	return res
}

func (s *stubRegistry) addOperation(key registry.OperationKey) *registry.Operation {
	op := &registry.Operation{
		ID: s.nextID, Key: key.Key, OwnerUserID: key.OwnerUserID, AppID: key.AppID, Status: shared.StatusEnable,
	}
	s.nextID++
	s.operations[key] = op
	return op
}

func (s *stubRegistry) EnsureResources(_ context.Context, keys []registry.ResourceKey) (map[registry.ResourceKey]*registry.Resource, error) {
	out := make(map[registry.ResourceKey]*registry.Resource, len(keys))
	for _, key := range keys {
		res, ok := s.resources[key]
		if !ok {
			res = s.addResource(key)
		}
		out[key] = res
	}
	return out, nil
}

func (s *stubRegistry) ResolveOperations(_ context.Context, keys []registry.OperationKey) (map[registry.OperationKey]*registry.Operation, error) {
	out := make(map[registry.OperationKey]*registry.Operation, len(keys))
	for _, key := range keys {
		out[key] = s.operations[key]
	}
	return out, nil
}

type stubLookup struct {
	publicGlobal   map[roles.UserRange][]roles.Candidate
	publicByOps    map[roles.UserRange][]roles.Candidate
	publicByOwners map[roles.UserRange][]roles.Candidate
	relation       map[string][]roles.Candidate
	userGlobal     []roles.Candidate
	userByOps      []roles.Candidate
	userByOwners   []roles.Candidate
}

func newStubLookup() *stubLookup {
	return &stubLookup{
		publicGlobal:   map[roles.UserRange][]roles.Candidate{},
		publicByOps:    map[roles.UserRange][]roles.Candidate{},
		publicByOwners: map[roles.UserRange][]roles.Candidate{},
		relation:       map[string][]roles.Candidate{},
	}
}

func (s *stubLookup) PublicGlobal(_ context.Context, ur roles.UserRange) ([]roles.Candidate, error) {
	return s.publicGlobal[ur], nil
}

func (s *stubLookup) PublicByOps(_ context.Context, ur roles.UserRange, opIDs []int64) ([]roles.Candidate, error) {
	return filterByID(s.publicByOps[ur], opIDs, func(c roles.Candidate) int64 { return c.OpID }), nil
}

func (s *stubLookup) PublicByOwners(_ context.Context, ur roles.UserRange, ownerIDs []int64) ([]roles.Candidate, error) {
	return filterByID(s.publicByOwners[ur], ownerIDs, func(c roles.Candidate) int64 { return c.OwnerUserID }), nil
}

func (s *stubLookup) RelationCandidates(_ context.Context, owner int64, key string) ([]roles.Candidate, error) {
	return s.relation[fmt.Sprintf("%d:%s", owner, key)], nil
}

func (s *stubLookup) UserGlobal(_ context.Context, _ int64, _ time.Time) ([]roles.Candidate, error) {
	return s.userGlobal, nil
}

func (s *stubLookup) UserByOps(_ context.Context, _ int64, opIDs []int64, _ time.Time) ([]roles.Candidate, error) {
	return filterByID(s.userByOps, opIDs, func(c roles.Candidate) int64 { return c.OpID }), nil
}

func (s *stubLookup) UserByOwners(_ context.Context, _ int64, ownerIDs []int64, _ time.Time) ([]roles.Candidate, error) {
	return filterByID(s.userByOwners, ownerIDs, func(c roles.Candidate) int64 { return c.OwnerUserID }), nil
}

func filterByID(rows []roles.Candidate, ids []int64, idOf func(roles.Candidate) int64) []roles.Candidate {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []roles.Candidate
	for _, c := range rows {
		if want[idOf(c)] {
			out = append(out, c)
		}
	}
	return out
}

type stubAudit struct {
	records []audit.Record
}

func (s *stubAudit) Record(rec audit.Record) {
	s.records = append(s.records, rec)
}

type fixture struct {
	registry *stubRegistry
	lookup   *stubLookup
	audit    *stubAudit
	resolver *Resolver
	res      *registry.Resource
	op       *registry.Operation
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	reg := newStubRegistry()
	lookup := newStubLookup()
	sink := &stubAudit{}
	f := &fixture{registry: reg, lookup: lookup, audit: sink}
	f.res = reg.addResource(registry.ResourceKey{Type: "doc", Data: "42", OwnerUserID: 7, AppID: 1})
	f.op = reg.addOperation(registry.OperationKey{Key: "read", OwnerUserID: 7, AppID: 1})
	f.resolver = NewResolver(reg, lookup, nil, sink, nil, slog.New(slog.DiscardHandler), cfg)
	f.resolver.now = func() time.Time { return time.Unix(1_000_000, 0) }
	return f
}

func (f *fixture) item() CheckItem {
	return CheckItem{ResType: "doc", ResData: "42", OwnerUserID: 7, AppID: 1, Ops: []string{"read"}}
}

func TestCheckDeniesByDefault(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.resolver.Check(context.Background(), 1, nil, []CheckItem{f.item()})
	var unauth *shared.UnauthorizedError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(unauth.Items) != 1 || unauth.Items[0].Reason != "unauthorized" {
		t.Fatalf("unexpected items %+v", unauth.Items)
	}
}

func TestCheckPriorityMonotonicity(t *testing.T) {
	allow := roles.Candidate{RoleID: 1, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeAllowAll,
		Priority: 80, Positivity: roles.PositivityAllow}
	deny := roles.Candidate{RoleID: 2, UserRange: roles.UserRangeRelation, ResRange: roles.ResRangeDenyAll,
		Priority: 20, Positivity: roles.PositivityDeny}

	// High-priority Allow beats low-priority Deny no matter which source
	// surfaced which candidate.
	for name, swap := range map[string]bool{"allow-from-public": false, "allow-from-relation": true} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Config{})
			if swap {
				a, d := allow, deny
				a.UserRange = roles.UserRangeRelation
				d.UserRange = roles.UserRangeGuest
				f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{d}
				f.lookup.relation["7:fan"] = []roles.Candidate{a}
			} else {
				f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{allow}
				f.lookup.relation["7:fan"] = []roles.Candidate{deny}
			}
			err := f.resolver.Check(context.Background(), 1, []Relation{{RelationKey: "fan", OwnerUserID: 7}}, []CheckItem{f.item()})
			if err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
		})
	}

	// Flip the priorities and the Deny wins.
	f := newFixture(t, Config{})
	allow.Priority, deny.Priority = 20, 80
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{allow}
	f.lookup.relation["7:fan"] = []roles.Candidate{deny}
	err := f.resolver.Check(context.Background(), 1, []Relation{{RelationKey: "fan", OwnerUserID: 7}}, []CheckItem{f.item()})
	var blockedErr *shared.BlockedError
	if !errors.As(err, &blockedErr) {
		t.Fatalf("expected blocked, got %v", err)
	}
	if blockedErr.Items[0].RoleID != 2 {
		t.Fatalf("blocking role = %d, want 2", blockedErr.Items[0].RoleID)
	}
}

func TestCheckDenyWinsPriorityTies(t *testing.T) {
	f := newFixture(t, Config{})
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 1, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeAllowAll, Priority: 50, Positivity: roles.PositivityAllow},
		{RoleID: 2, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeDenyAll, Priority: 50, Positivity: roles.PositivityDeny},
	}
	err := f.resolver.Check(context.Background(), 1, nil, []CheckItem{f.item()})
	var blockedErr *shared.BlockedError
	if !errors.As(err, &blockedErr) {
		t.Fatalf("expected blocked on tie, got %v", err)
	}
}

func TestCheckRootBypassSupremacy(t *testing.T) {
	f := newFixture(t, Config{RootUsers: []int64{99}})
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 1, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeDenyAll, Priority: 100, Positivity: roles.PositivityDeny},
	}
	if err := f.resolver.Check(context.Background(), 99, nil, []CheckItem{f.item()}); err != nil {
		t.Fatalf("root viewer denied: %v", err)
	}
	if len(f.audit.records) != 1 || f.audit.records[0].Items[0].Source != string(SourceRoot) {
		t.Fatalf("root bypass not audited: %+v", f.audit.records)
	}
}

func TestCheckSelfBypassIsWeakest(t *testing.T) {
	f := newFixture(t, Config{SelfBypass: true})
	// Viewer 7 owns the resource; with no other roles, self-bypass allows.
	if err := f.resolver.Check(context.Background(), 7, nil, []CheckItem{f.item()}); err != nil {
		t.Fatalf("owner denied own resource: %v", err)
	}
	// Any Deny with priority above the minimum beats it.
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 3, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeDenyAll, Priority: 1, Positivity: roles.PositivityDeny},
	}
	err := f.resolver.Check(context.Background(), 7, nil, []CheckItem{f.item()})
	var blockedErr *shared.BlockedError
	if !errors.As(err, &blockedErr) {
		t.Fatalf("expected deny to beat self-bypass, got %v", err)
	}
}

func TestCheckGrantExpiry(t *testing.T) {
	f := newFixture(t, Config{})
	grantedUntil := f.resolver.now().Add(100 * time.Second).Unix()
	f.lookup.userGlobal = []roles.Candidate{
		{RoleID: 4, OwnerUserID: 7, UserRange: roles.UserRangeUser, ResRange: roles.ResRangeAllowAll,
			Priority: 30, Positivity: roles.PositivityAllow, Timeout: grantedUntil},
	}
	if err := f.resolver.Check(context.Background(), 9, nil, []CheckItem{f.item()}); err != nil {
		t.Fatalf("live grant denied: %v", err)
	}
	// Advance past the expiry: the same row no longer grants.
	f.resolver.now = func() time.Time { return time.Unix(grantedUntil+1, 0) }
	err := f.resolver.Check(context.Background(), 9, nil, []CheckItem{f.item()})
	var unauth *shared.UnauthorizedError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected deny after expiry, got %v", err)
	}
}

func TestCheckExcludeRoleBlocks(t *testing.T) {
	f := newFixture(t, Config{})
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 10, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeAllowAll, Priority: 10, Positivity: roles.PositivityAllow},
	}
	f.lookup.publicByOps[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 11, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeExclude, Priority: 50,
			Positivity: roles.PositivityDeny, ResID: f.res.ID, OpID: f.op.ID},
	}
	err := f.resolver.Check(context.Background(), 5, nil, []CheckItem{f.item()})
	var blockedErr *shared.BlockedError
	if !errors.As(err, &blockedErr) {
		t.Fatalf("expected blocked, got %v", err)
	}
	item := blockedErr.Items[0]
	if item.RoleID != 11 || item.Reason != "blocked" {
		t.Fatalf("unexpected blocked item %+v", item)
	}
}

func TestCheckLoginRolesNeedAuthenticatedViewer(t *testing.T) {
	f := newFixture(t, Config{})
	f.lookup.publicGlobal[roles.UserRangeLogin] = []roles.Candidate{
		{RoleID: 12, UserRange: roles.UserRangeLogin, ResRange: roles.ResRangeAllowAll, Priority: 10, Positivity: roles.PositivityAllow},
	}
	if err := f.resolver.Check(context.Background(), 0, nil, []CheckItem{f.item()}); err == nil {
		t.Fatal("guest viewer allowed through a login role")
	}
	if err := f.resolver.Check(context.Background(), 5, nil, []CheckItem{f.item()}); err != nil {
		t.Fatalf("authenticated viewer denied: %v", err)
	}
}

func TestCheckOptionalOps(t *testing.T) {
	f := newFixture(t, Config{})
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 13, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeAllowAll, Priority: 10, Positivity: roles.PositivityAllow},
	}
	item := f.item()
	item.OptionalOps = []string{"annotate"} // never registered

	if err := f.resolver.Check(context.Background(), 1, nil, []CheckItem{item}); err != nil {
		t.Fatalf("unknown optional op denied the batch: %v", err)
	}

	// The same unknown operation as mandatory denies.
	item.Ops = []string{"annotate"}
	item.OptionalOps = nil
	err := f.resolver.Check(context.Background(), 1, nil, []CheckItem{item})
	var unauth *shared.UnauthorizedError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected deny for unregistered mandatory op, got %v", err)
	}
	if unauth.Items[0].Reason != "operation not registered" {
		t.Fatalf("unexpected reason %q", unauth.Items[0].Reason)
	}
}

func TestCheckReportsEveryDeniedItem(t *testing.T) {
	f := newFixture(t, Config{})
	f.registry.addOperation(registry.OperationKey{Key: "write", OwnerUserID: 7, AppID: 1})
	item := f.item()
	item.Ops = []string{"read", "write"}

	err := f.resolver.Check(context.Background(), 1, nil, []CheckItem{item})
	var unauth *shared.UnauthorizedError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(unauth.Items) != 2 {
		t.Fatalf("partial failure not fully reported: %+v", unauth.Items)
	}
}

func TestCheckAuditCompleteness(t *testing.T) {
	f := newFixture(t, Config{})
	f.registry.addOperation(registry.OperationKey{Key: "write", OwnerUserID: 7, AppID: 1})
	item := f.item()
	item.Ops = []string{"read", "write"}
	item.OptionalOps = []string{"annotate"}

	_ = f.resolver.Check(context.Background(), 1, nil, []CheckItem{item})
	if len(f.audit.records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(f.audit.records))
	}
	rec := f.audit.records[0]
	if len(rec.Items) != 3 {
		t.Fatalf("got %d audited items, want 3", len(rec.Items))
	}
	if rec.Allowed {
		t.Fatal("denied check audited as allowed")
	}
	if rec.CheckID == "" {
		t.Fatal("audit record missing check id")
	}

	// An allowed check also produces exactly one record.
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 14, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeAllowAll, Priority: 10, Positivity: roles.PositivityAllow},
	}
	if err := f.resolver.Check(context.Background(), 1, nil, []CheckItem{f.item()}); err != nil {
		t.Fatalf("allow case failed: %v", err)
	}
	if len(f.audit.records) != 2 || !f.audit.records[1].Allowed {
		t.Fatalf("allowed check not audited: %+v", f.audit.records)
	}
}

func TestCheckLazilyRegistersResources(t *testing.T) {
	f := newFixture(t, Config{})
	item := CheckItem{ResType: "doc", ResData: "brand-new", OwnerUserID: 7, AppID: 1, Ops: []string{"read"}}
	_ = f.resolver.Check(context.Background(), 1, nil, []CheckItem{item})
	key := registry.ResourceKey{Type: "doc", Data: "brand-new", OwnerUserID: 7, AppID: 1}
	if f.registry.resources[key] == nil {
		t.Fatal("resource was not lazily registered")
	}
}
