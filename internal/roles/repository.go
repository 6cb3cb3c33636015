package roles

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for roles, permissions
// and user grants.
type Repository struct {
	db DBTX
}

// NewRepository constructs a repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const roleColumns = `id, owner_user_id, app_id, name, relation_key, user_range, res_range, priority, status, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.OwnerUserID, &role.AppID, &role.Name, &role.RelationKey,
		&role.UserRange, &role.ResRange, &role.Priority, &role.Status, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// GetRole loads one role by id regardless of status.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// FindRoleByName loads the live role with the given name for an owner.
func (r *Repository) FindRoleByName(ctx context.Context, ownerUserID int64, name string) (Role, error) {
	return scanRole(r.db.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE owner_user_id = $1 AND name = $2 AND status = 1`,
		ownerUserID, name))
}

// FindRoleByRelationKey loads the live relation role with the given key for
// an owner.
func (r *Repository) FindRoleByRelationKey(ctx context.Context, ownerUserID int64, relationKey string) (Role, error) {
	return scanRole(r.db.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles
		 WHERE owner_user_id = $1 AND relation_key = $2 AND user_range = 3 AND status = 1`,
		ownerUserID, relationKey))
}

// ListRoles returns the live roles of one owner ordered by priority.
func (r *Repository) ListRoles(ctx context.Context, ownerUserID, appID int64) ([]Role, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+roleColumns+` FROM roles
		 WHERE owner_user_id = $1 AND app_id = $2 AND status = 1
		 ORDER BY priority DESC, id`, ownerUserID, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// InsertRole persists a new role and returns it with assigned id.
func (r *Repository) InsertRole(ctx context.Context, role Role) (Role, error) {
	return scanRole(r.db.QueryRow(ctx,
		`INSERT INTO roles (owner_user_id, app_id, name, relation_key, user_range, res_range, priority, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 1, NOW(), NOW())
		 RETURNING `+roleColumns,
		role.OwnerUserID, role.AppID, role.Name, role.RelationKey, role.UserRange, role.ResRange, role.Priority))
}

// UpdateRole rewrites the mutable fields of a role.
func (r *Repository) UpdateRole(ctx context.Context, role Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE roles SET name = $2, relation_key = $3, user_range = $4, res_range = $5, priority = $6, updated_at = NOW()
		 WHERE id = $1 AND status = 1`,
		role.ID, role.Name, role.RelationKey, role.UserRange, role.ResRange, role.Priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SoftDeleteRole marks a role deleted.
func (r *Repository) SoftDeleteRole(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE roles SET status = 2, updated_at = NOW() WHERE id = $1 AND status = 1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LiveRoleUsers returns the live grants of a role restricted to the given
// users. An empty user list returns nothing.
func (r *Repository) LiveRoleUsers(ctx context.Context, roleID int64, userIDs []int64) ([]RoleUser, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, role_id, user_id, timeout, status FROM role_users
		 WHERE role_id = $1 AND user_id = ANY($2) AND status = 1`, roleID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoleUsers(rows)
}

// InsertRoleUser persists a new grant.
func (r *Repository) InsertRoleUser(ctx context.Context, roleID, userID, timeout int64) (RoleUser, error) {
	var grant RoleUser
	err := r.db.QueryRow(ctx,
		`INSERT INTO role_users (role_id, user_id, timeout, status) VALUES ($1, $2, $3, 1)
		 RETURNING id, role_id, user_id, timeout, status`, roleID, userID, timeout).
		Scan(&grant.ID, &grant.RoleID, &grant.UserID, &grant.Timeout, &grant.Status)
	return grant, err
}

// UpdateRoleUserTimeout rewrites the expiry of one grant.
func (r *Repository) UpdateRoleUserTimeout(ctx context.Context, id, timeout int64) error {
	_, err := r.db.Exec(ctx, `UPDATE role_users SET timeout = $2 WHERE id = $1 AND status = 1`, id, timeout)
	return err
}

// SoftDeleteRoleUsers revokes the live grants of a role for the given users
// and returns how many rows changed.
func (r *Repository) SoftDeleteRoleUsers(ctx context.Context, roleID int64, userIDs []int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE role_users SET status = 2 WHERE role_id = $1 AND user_id = ANY($2) AND status = 1`,
		roleID, userIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SoftDeleteAllRoleUsers revokes every live grant of a role.
func (r *Repository) SoftDeleteAllRoleUsers(ctx context.Context, roleID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE role_users SET status = 2 WHERE role_id = $1 AND status = 1`, roleID)
	return err
}

// PageRoleUsers walks the live grants of a role in id order. Used when a
// mutation must fan out over an unbounded grant set.
func (r *Repository) PageRoleUsers(ctx context.Context, roleID, afterID int64, limit int32) ([]RoleUser, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, role_id, user_id, timeout, status FROM role_users
		 WHERE role_id = $1 AND id > $2 AND status = 1 ORDER BY id LIMIT $3`,
		roleID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoleUsers(rows)
}

// FindExpiredGrants returns live grants whose timeout has passed.
func (r *Repository) FindExpiredGrants(ctx context.Context, now time.Time, limit int32) ([]RoleUser, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, role_id, user_id, timeout, status FROM role_users
		 WHERE status = 1 AND timeout > 0 AND timeout <= $1 ORDER BY id LIMIT $2`,
		now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoleUsers(rows)
}

// SoftDeleteGrantsByID revokes grants by primary key.
func (r *Repository) SoftDeleteGrantsByID(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE role_users SET status = 2 WHERE id = ANY($1) AND status = 1`, ids)
	return err
}

func collectRoleUsers(rows pgx.Rows) ([]RoleUser, error) {
	var out []RoleUser
	for rows.Next() {
		var grant RoleUser
		if err := rows.Scan(&grant.ID, &grant.RoleID, &grant.UserID, &grant.Timeout, &grant.Status); err != nil {
			return nil, err
		}
		out = append(out, grant)
	}
	return out, rows.Err()
}

// ListRolePermissions returns the live permissions of a role.
func (r *Repository) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, role_id, res_id, op_id, positivity, status FROM permissions
		 WHERE role_id = $1 AND status = 1 ORDER BY id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// PagePermissions walks the live permissions of a role in id order.
func (r *Repository) PagePermissions(ctx context.Context, roleID, afterID int64, limit int32) ([]Permission, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, role_id, res_id, op_id, positivity, status FROM permissions
		 WHERE role_id = $1 AND id > $2 AND status = 1 ORDER BY id LIMIT $3`,
		roleID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

// InsertPermission persists a new permission row.
func (r *Repository) InsertPermission(ctx context.Context, roleID int64, ref PermissionRef) (Permission, error) {
	var perm Permission
	err := r.db.QueryRow(ctx,
		`INSERT INTO permissions (role_id, res_id, op_id, positivity, status) VALUES ($1, $2, $3, $4, 1)
		 RETURNING id, role_id, res_id, op_id, positivity, status`,
		roleID, ref.ResID, ref.OpID, ref.Positivity).
		Scan(&perm.ID, &perm.RoleID, &perm.ResID, &perm.OpID, &perm.Positivity, &perm.Status)
	return perm, err
}

// UpdatePermissionPositivity flips the Allow/Deny flag of one permission.
func (r *Repository) UpdatePermissionPositivity(ctx context.Context, id int64, positivity Positivity) error {
	_, err := r.db.Exec(ctx, `UPDATE permissions SET positivity = $2 WHERE id = $1 AND status = 1`, id, positivity)
	return err
}

// SoftDeletePermissionsByID removes permission rows by primary key.
func (r *Repository) SoftDeletePermissionsByID(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE permissions SET status = 2 WHERE id = ANY($1) AND status = 1`, ids)
	return err
}

// SoftDeleteAllPermissions removes every live permission of a role.
func (r *Repository) SoftDeleteAllPermissions(ctx context.Context, roleID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE permissions SET status = 2 WHERE role_id = $1 AND status = 1`, roleID)
	return err
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	var out []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.RoleID, &perm.ResID, &perm.OpID, &perm.Positivity, &perm.Status); err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	return out, rows.Err()
}
