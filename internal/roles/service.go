package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-platform/aegis/internal/platform/db"
	"github.com/aegis-platform/aegis/internal/registry"
	"github.com/aegis-platform/aegis/internal/shared"
)

// fanoutPageSize bounds DB paging when a mutation must walk an unbounded
// grant or permission set to compute affected cache keys.
const fanoutPageSize = 100

// RepositoryPort defines data access methods for the role store.
type RepositoryPort interface {
	Bind(tx pgx.Tx) RepositoryPort
	GetRole(ctx context.Context, id int64) (Role, error)
	FindRoleByName(ctx context.Context, ownerUserID int64, name string) (Role, error)
	FindRoleByRelationKey(ctx context.Context, ownerUserID int64, relationKey string) (Role, error)
	ListRoles(ctx context.Context, ownerUserID, appID int64) ([]Role, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) error
	SoftDeleteRole(ctx context.Context, id int64) error

	LiveRoleUsers(ctx context.Context, roleID int64, userIDs []int64) ([]RoleUser, error)
	InsertRoleUser(ctx context.Context, roleID, userID, timeout int64) (RoleUser, error)
	UpdateRoleUserTimeout(ctx context.Context, id, timeout int64) error
	SoftDeleteRoleUsers(ctx context.Context, roleID int64, userIDs []int64) (int64, error)
	SoftDeleteAllRoleUsers(ctx context.Context, roleID int64) error
	PageRoleUsers(ctx context.Context, roleID, afterID int64, limit int32) ([]RoleUser, error)
	FindExpiredGrants(ctx context.Context, now time.Time, limit int32) ([]RoleUser, error)
	SoftDeleteGrantsByID(ctx context.Context, ids []int64) error

	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	PagePermissions(ctx context.Context, roleID, afterID int64, limit int32) ([]Permission, error)
	InsertPermission(ctx context.Context, roleID int64, ref PermissionRef) (Permission, error)
	UpdatePermissionPositivity(ctx context.Context, id int64, positivity Positivity) error
	SoftDeletePermissionsByID(ctx context.Context, ids []int64) error
	SoftDeleteAllPermissions(ctx context.Context, roleID int64) error
}

// Bind returns the repository itself or a copy bound to the transaction.
func (r *Repository) Bind(tx pgx.Tx) RepositoryPort {
	if tx == nil {
		return r
	}
	return r.WithTx(tx)
}

// CachePort is the slice of the access cache the role store drives.
type CachePort interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// ScopeCheckerPort validates resource/operation linkage during RoleSetOps.
type ScopeCheckerPort interface {
	GetResource(ctx context.Context, id int64) (registry.Resource, error)
	GetOperation(ctx context.Context, id int64) (registry.Operation, error)
}

// Service orchestrates role and grant mutations. Every mutation finishes its
// cascade, DB transaction plus cache invalidation, before returning, so the
// mutator reads its own writes afterwards.
type Service struct {
	repo   RepositoryPort
	scopes ScopeCheckerPort
	cache  CachePort
	logger *slog.Logger
	runTx  func(ctx context.Context, fn func(pgx.Tx) error) error
	now    func() time.Time
}

// NewService builds a Service instance. The pool backs internally opened
// transactions; callers may still pass their own transaction per mutation.
func NewService(pool *pgxpool.Pool, repo RepositoryPort, scopes ScopeCheckerPort, cache CachePort, logger *slog.Logger) *Service {
	s := &Service{repo: repo, scopes: scopes, cache: cache, logger: logger, now: time.Now}
	if pool != nil {
		s.runTx = func(ctx context.Context, fn func(pgx.Tx) error) error {
			return db.WithTx(ctx, pool, fn)
		}
	} else {
		s.runTx = func(ctx context.Context, fn func(pgx.Tx) error) error {
			return fn(nil)
		}
	}
	return s
}

// RoleInput carries the fields of a new role.
type RoleInput struct {
	OwnerUserID int64
	AppID       int64
	Name        string
	RelationKey string
	UserRange   UserRange
	ResRange    ResRange
	Priority    int16
}

// EditRoleInput carries the mutable fields of a role. Owner and app scope
// are immutable.
type EditRoleInput struct {
	Name        string
	RelationKey string
	UserRange   UserRange
	ResRange    ResRange
	Priority    int16
}

// GetRole loads one live role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NewNotFoundError("role", id)
		}
		return Role{}, err
	}
	if !role.Status.Live() {
		return Role{}, shared.NewNotFoundError("role", id)
	}
	return role, nil
}

// ListRoles returns the live roles of one owner.
func (s *Service) ListRoles(ctx context.Context, ownerUserID, appID int64) ([]Role, error) {
	return s.repo.ListRoles(ctx, ownerUserID, appID)
}

// AddRole creates a role. Duplicate names per owner and duplicate relation
// keys are rejected with the conflicting role id.
func (s *Service) AddRole(ctx context.Context, actorID int64, tx pgx.Tx, input RoleInput) (Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.RelationKey = strings.TrimSpace(input.RelationKey)
	if err := validateRoleFields(input.Name, input.RelationKey, input.UserRange, input.ResRange, input.Priority); err != nil {
		return Role{}, err
	}
	var created Role
	err := s.inTx(ctx, tx, func(repo RepositoryPort) error {
		if err := checkNameFree(ctx, repo, input.OwnerUserID, input.Name, 0); err != nil {
			return err
		}
		if input.UserRange == UserRangeRelation {
			if err := checkRelationKeyFree(ctx, repo, input.OwnerUserID, input.RelationKey, 0); err != nil {
				return err
			}
		}
		role, err := repo.InsertRole(ctx, Role{
			OwnerUserID: input.OwnerUserID,
			AppID:       input.AppID,
			Name:        input.Name,
			RelationKey: input.RelationKey,
			UserRange:   input.UserRange,
			ResRange:    input.ResRange,
			Priority:    input.Priority,
		})
		if err != nil {
			return mapUniqueViolation(err, input.Name)
		}
		created = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	if err := s.invalidate(ctx, RoleScopeKeys(created)); err != nil {
		return Role{}, err
	}
	s.log(ctx, "role added", actorID, created.ID)
	return created, nil
}

// AddRelationRole creates a relation-range role. The relation key is
// mandatory here.
func (s *Service) AddRelationRole(ctx context.Context, actorID int64, tx pgx.Tx, input RoleInput) (Role, error) {
	input.UserRange = UserRangeRelation
	if strings.TrimSpace(input.RelationKey) == "" {
		return Role{}, shared.NewValidationError("relation_key", "must not be empty")
	}
	return s.AddRole(ctx, actorID, tx, input)
}

// EditRole rewrites a role. Narrowing the user range away from explicit
// grants revokes every live grant; narrowing the res range away from listed
// permissions drops every permission row. Both cascades commit with the role
// update and their derived cache keys are invalidated before returning.
func (s *Service) EditRole(ctx context.Context, actorID int64, tx pgx.Tx, roleID int64, input EditRoleInput) (Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.RelationKey = strings.TrimSpace(input.RelationKey)
	if err := validateRoleFields(input.Name, input.RelationKey, input.UserRange, input.ResRange, input.Priority); err != nil {
		return Role{}, err
	}
	old, err := s.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}

	updated := old
	updated.Name = input.Name
	updated.RelationKey = input.RelationKey
	updated.UserRange = input.UserRange
	updated.ResRange = input.ResRange
	updated.Priority = input.Priority

	var userIDs, opIDs []int64
	err = s.inTx(ctx, tx, func(repo RepositoryPort) error {
		if input.Name != old.Name {
			if err := checkNameFree(ctx, repo, old.OwnerUserID, input.Name, old.ID); err != nil {
				return err
			}
		}
		if input.UserRange == UserRangeRelation && input.RelationKey != old.RelationKey {
			if err := checkRelationKeyFree(ctx, repo, old.OwnerUserID, input.RelationKey, old.ID); err != nil {
				return err
			}
		}
		userIDs, opIDs, err = collectFanout(ctx, repo, old)
		if err != nil {
			return err
		}
		if err := repo.UpdateRole(ctx, updated); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.NewNotFoundError("role", roleID)
			}
			return mapUniqueViolation(err, input.Name)
		}
		if old.UserRange == UserRangeUser && updated.UserRange != UserRangeUser {
			if err := repo.SoftDeleteAllRoleUsers(ctx, roleID); err != nil {
				return err
			}
		}
		if old.ResRange.Listed() && !updated.ResRange.Listed() {
			if err := repo.SoftDeleteAllPermissions(ctx, roleID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Role{}, err
	}

	keys := MutationKeys(old, userIDs, opIDs)
	keys = append(keys, MutationKeys(updated, userIDs, opIDs)...)
	if err := s.invalidate(ctx, dedupeKeys(keys)); err != nil {
		return Role{}, err
	}
	s.log(ctx, "role edited", actorID, roleID)
	return updated, nil
}

// EditRelationRole rewrites a relation-range role, keeping it in that range.
func (s *Service) EditRelationRole(ctx context.Context, actorID int64, tx pgx.Tx, roleID int64, input EditRoleInput) (Role, error) {
	old, err := s.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if old.UserRange != UserRangeRelation {
		return Role{}, shared.NewValidationError("user_range", "role is not a relation role")
	}
	input.UserRange = UserRangeRelation
	if strings.TrimSpace(input.RelationKey) == "" {
		return Role{}, shared.NewValidationError("relation_key", "must not be empty")
	}
	return s.EditRole(ctx, actorID, tx, roleID, input)
}

// DeleteRole soft-deletes a role together with all of its grants and
// permissions, and invalidates every derived cache key.
func (s *Service) DeleteRole(ctx context.Context, actorID int64, tx pgx.Tx, roleID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	var userIDs, opIDs []int64
	err = s.inTx(ctx, tx, func(repo RepositoryPort) error {
		userIDs, opIDs, err = collectFanout(ctx, repo, role)
		if err != nil {
			return err
		}
		if err := repo.SoftDeleteRole(ctx, roleID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.NewNotFoundError("role", roleID)
			}
			return err
		}
		if err := repo.SoftDeleteAllRoleUsers(ctx, roleID); err != nil {
			return err
		}
		return repo.SoftDeleteAllPermissions(ctx, roleID)
	})
	if err != nil {
		return err
	}
	if err := s.invalidate(ctx, MutationKeys(role, userIDs, opIDs)); err != nil {
		return err
	}
	s.log(ctx, "role deleted", actorID, roleID)
	return nil
}

// RoleAddUser grants a role to the given users in bulk. Granting an existing
// live grant with the same timeout is a no-op; a different timeout rewrites
// the stored one. Returns how many grants changed.
func (s *Service) RoleAddUser(ctx context.Context, actorID int64, tx pgx.Tx, roleID int64, userIDs []int64, timeout int64) (int, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return 0, err
	}
	if role.UserRange != UserRangeUser {
		return 0, shared.NewValidationError("user_range", "role does not take explicit user grants")
	}
	if timeout < 0 {
		return 0, shared.NewValidationError("timeout", "must not be negative")
	}
	if timeout != 0 && timeout <= s.now().Unix() {
		return 0, shared.NewValidationError("timeout", "must be in the future")
	}
	userIDs = dedupeIDs(userIDs)
	if len(userIDs) == 0 {
		return 0, shared.NewValidationError("user_ids", "must not be empty")
	}

	var changed []int64
	var opIDs []int64
	err = s.inTx(ctx, tx, func(repo RepositoryPort) error {
		existing, err := repo.LiveRoleUsers(ctx, roleID, userIDs)
		if err != nil {
			return err
		}
		byUser := make(map[int64]RoleUser, len(existing))
		for _, grant := range existing {
			byUser[grant.UserID] = grant
		}
		for _, userID := range userIDs {
			grant, ok := byUser[userID]
			if ok && grant.Timeout == timeout {
				continue
			}
			if ok {
				if err := repo.UpdateRoleUserTimeout(ctx, grant.ID, timeout); err != nil {
					return err
				}
			} else {
				if _, err := repo.InsertRoleUser(ctx, roleID, userID, timeout); err != nil {
					return err
				}
			}
			changed = append(changed, userID)
		}
		if len(changed) == 0 {
			return nil
		}
		_, opIDs, err = collectFanout(ctx, repo, role)
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := s.invalidate(ctx, GrantKeys(role, changed, opIDs)); err != nil {
		return 0, err
	}
	s.log(ctx, "role users granted", actorID, roleID, slog.Int("changed", len(changed)))
	return len(changed), nil
}

// RoleDelUser revokes a role from the given users in bulk and returns how
// many live grants were removed.
func (s *Service) RoleDelUser(ctx context.Context, actorID int64, tx pgx.Tx, roleID int64, userIDs []int64) (int, error) {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return 0, err
	}
	userIDs = dedupeIDs(userIDs)
	if len(userIDs) == 0 {
		return 0, shared.NewValidationError("user_ids", "must not be empty")
	}
	var removed int64
	var opIDs []int64
	err = s.inTx(ctx, tx, func(repo RepositoryPort) error {
		removed, err = repo.SoftDeleteRoleUsers(ctx, roleID, userIDs)
		if err != nil {
			return err
		}
		_, opIDs, err = collectFanout(ctx, repo, role)
		return err
	})
	if err != nil {
		return 0, err
	}
	// The revoked subset is not reported per user, so invalidate for every
	// requested id; extra deletes of absent keys are harmless.
	if err := s.invalidate(ctx, GrantKeys(role, userIDs, opIDs)); err != nil {
		return 0, err
	}
	s.log(ctx, "role users revoked", actorID, roleID, slog.Int64("removed", removed))
	return int(removed), nil
}

// RoleSetOps diffs the requested permission set against the stored one and
// applies exactly the difference, invalidating the cache keys of changed
// pairs only.
func (s *Service) RoleSetOps(ctx context.Context, actorID int64, tx pgx.Tx, roleID int64, refs []PermissionRef) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.ResRange.Listed() {
		return shared.NewValidationError("res_range", "role does not carry listed permissions")
	}
	requested, err := s.validateRefs(ctx, role, refs)
	if err != nil {
		return err
	}

	var changedOps, userIDs []int64
	err = s.inTx(ctx, tx, func(repo RepositoryPort) error {
		stored, err := repo.ListRolePermissions(ctx, roleID)
		if err != nil {
			return err
		}
		type pair struct{ res, op int64 }
		storedBy := make(map[pair]Permission, len(stored))
		for _, perm := range stored {
			storedBy[pair{perm.ResID, perm.OpID}] = perm
		}
		changedOpSet := make(map[int64]struct{})
		seen := make(map[pair]struct{}, len(requested))
		for _, ref := range requested {
			key := pair{ref.ResID, ref.OpID}
			seen[key] = struct{}{}
			perm, ok := storedBy[key]
			switch {
			case !ok:
				if _, err := repo.InsertPermission(ctx, roleID, ref); err != nil {
					return err
				}
				changedOpSet[ref.OpID] = struct{}{}
			case perm.Positivity != ref.Positivity:
				if err := repo.UpdatePermissionPositivity(ctx, perm.ID, ref.Positivity); err != nil {
					return err
				}
				changedOpSet[ref.OpID] = struct{}{}
			}
		}
		var removeIDs []int64
		for key, perm := range storedBy {
			if _, ok := seen[key]; ok {
				continue
			}
			removeIDs = append(removeIDs, perm.ID)
			changedOpSet[perm.OpID] = struct{}{}
		}
		if err := repo.SoftDeletePermissionsByID(ctx, removeIDs); err != nil {
			return err
		}
		for opID := range changedOpSet {
			changedOps = append(changedOps, opID)
		}
		if len(changedOps) > 0 && role.UserRange == UserRangeUser {
			userIDs, _, err = collectFanout(ctx, repo, role)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.invalidate(ctx, PermissionKeys(role, changedOps, userIDs)); err != nil {
		return err
	}
	s.log(ctx, "role permissions set", actorID, roleID, slog.Int("changed", len(changedOps)))
	return nil
}

// SweepExpiredGrants revokes live grants whose timeout has passed and
// invalidates their derived cache keys. It returns the number of grants
// swept; callers loop until zero.
func (s *Service) SweepExpiredGrants(ctx context.Context, limit int32) (int, error) {
	if limit <= 0 {
		limit = fanoutPageSize
	}
	expired, err := s.repo.FindExpiredGrants(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(expired))
	byRole := make(map[int64][]int64)
	for _, grant := range expired {
		ids = append(ids, grant.ID)
		byRole[grant.RoleID] = append(byRole[grant.RoleID], grant.UserID)
	}
	if err := s.repo.SoftDeleteGrantsByID(ctx, ids); err != nil {
		return 0, err
	}
	var keys []string
	for roleID, users := range byRole {
		role, err := s.repo.GetRole(ctx, roleID)
		if err != nil {
			return 0, err
		}
		_, opIDs, err := collectFanout(ctx, s.repo, role)
		if err != nil {
			return 0, err
		}
		keys = append(keys, GrantKeys(role, users, opIDs)...)
	}
	if err := s.invalidate(ctx, dedupeKeys(keys)); err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (s *Service) validateRefs(ctx context.Context, role Role, refs []PermissionRef) ([]PermissionRef, error) {
	type pair struct{ res, op int64 }
	seen := make(map[pair]Positivity, len(refs))
	out := make([]PermissionRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Positivity != PositivityAllow && ref.Positivity != PositivityDeny {
			return nil, shared.NewValidationError("positivity", "must be allow or deny")
		}
		key := pair{ref.ResID, ref.OpID}
		if prev, ok := seen[key]; ok {
			if prev != ref.Positivity {
				return nil, shared.NewValidationError("ops", fmt.Sprintf("conflicting positivity for resource %d operation %d", ref.ResID, ref.OpID))
			}
			continue
		}
		seen[key] = ref.Positivity

		res, err := s.scopes.GetResource(ctx, ref.ResID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, shared.NewNotFoundError("resource", ref.ResID)
			}
			return nil, err
		}
		if !res.Status.Live() {
			return nil, shared.NewNotFoundError("resource", ref.ResID)
		}
		if !role.System() && res.OwnerUserID != role.OwnerUserID {
			return nil, shared.NewValidationError("res_id", fmt.Sprintf("resource %d is not owned by the role owner", ref.ResID))
		}
		op, err := s.scopes.GetOperation(ctx, ref.OpID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, shared.NewNotFoundError("operation", ref.OpID)
			}
			return nil, err
		}
		if !op.Status.Live() {
			return nil, shared.NewNotFoundError("operation", ref.OpID)
		}
		if op.OwnerUserID != res.OwnerUserID || op.AppID != res.AppID {
			return nil, shared.NewValidationError("op_id", fmt.Sprintf("operation %d is not scoped to resource %d", ref.OpID, ref.ResID))
		}
		out = append(out, ref)
	}
	return out, nil
}

func (s *Service) inTx(ctx context.Context, external pgx.Tx, fn func(repo RepositoryPort) error) error {
	if external != nil {
		return fn(s.repo.Bind(external))
	}
	return s.runTx(ctx, func(tx pgx.Tx) error {
		return fn(s.repo.Bind(tx))
	})
}

func (s *Service) invalidate(ctx context.Context, keys []string) error {
	if s.cache == nil || len(keys) == 0 {
		return nil
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		return fmt.Errorf("roles: cache invalidate: %w", err)
	}
	return nil
}

func (s *Service) log(ctx context.Context, msg string, actorID, roleID int64, attrs ...any) {
	if s.logger == nil {
		return
	}
	args := append([]any{slog.Int64("actor_id", actorID), slog.Int64("role_id", roleID)}, attrs...)
	s.logger.InfoContext(ctx, msg, args...)
}

// collectFanout pages through the grants and permissions linked to a role so
// mutations without an explicit affected list can still compute every
// derived cache key.
func collectFanout(ctx context.Context, repo RepositoryPort, role Role) (userIDs, opIDs []int64, err error) {
	if role.UserRange == UserRangeUser {
		var afterID int64
		for {
			grants, err := repo.PageRoleUsers(ctx, role.ID, afterID, fanoutPageSize)
			if err != nil {
				return nil, nil, err
			}
			for _, grant := range grants {
				userIDs = append(userIDs, grant.UserID)
				afterID = grant.ID
			}
			if len(grants) < fanoutPageSize {
				break
			}
		}
	}
	if role.ResRange.Listed() {
		var afterID int64
		opSet := make(map[int64]struct{})
		for {
			perms, err := repo.PagePermissions(ctx, role.ID, afterID, fanoutPageSize)
			if err != nil {
				return nil, nil, err
			}
			for _, perm := range perms {
				opSet[perm.OpID] = struct{}{}
				afterID = perm.ID
			}
			if len(perms) < fanoutPageSize {
				break
			}
		}
		for opID := range opSet {
			opIDs = append(opIDs, opID)
		}
	}
	return userIDs, opIDs, nil
}

func validateRoleFields(name, relationKey string, userRange UserRange, resRange ResRange, priority int16) error {
	if name == "" {
		return shared.NewValidationError("name", "must not be empty")
	}
	if !userRange.Valid() {
		return shared.NewValidationError("user_range", "unknown value")
	}
	if !resRange.Valid() {
		return shared.NewValidationError("res_range", "unknown value")
	}
	if priority < PriorityMin || priority > PriorityMax {
		return shared.NewValidationError("priority", fmt.Sprintf("must be between %d and %d", PriorityMin, PriorityMax))
	}
	if userRange == UserRangeRelation && relationKey == "" {
		return shared.NewValidationError("relation_key", "required for relation roles")
	}
	if userRange != UserRangeRelation && relationKey != "" {
		return shared.NewValidationError("relation_key", "only relation roles carry a relation key")
	}
	return nil
}

func checkNameFree(ctx context.Context, repo RepositoryPort, ownerUserID int64, name string, selfID int64) error {
	existing, err := repo.FindRoleByName(ctx, ownerUserID, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return &shared.AlreadyExistsError{Entity: "role", Name: name, ConflictID: existing.ID}
}

func checkRelationKeyFree(ctx context.Context, repo RepositoryPort, ownerUserID int64, relationKey string, selfID int64) error {
	existing, err := repo.FindRoleByRelationKey(ctx, ownerUserID, relationKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return &shared.AlreadyExistsError{Entity: "relation role", Name: relationKey, ConflictID: existing.ID}
}

// mapUniqueViolation converts a unique index violation racing past the
// pre-check into the structured duplicate error.
func mapUniqueViolation(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &shared.AlreadyExistsError{Entity: "role", Name: name}
	}
	return err
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
