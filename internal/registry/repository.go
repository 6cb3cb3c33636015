package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so lookups can join an
// externally managed transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for the registries.
type Repository struct {
	db DBTX
}

// NewRepository constructs a repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// FindResources loads all resources matching the given identity tuples in a
// single round-trip.
func (r *Repository) FindResources(ctx context.Context, keys []ResourceKey) ([]Resource, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*4)
	for i, key := range keys {
		base := i * 4
		clauses = append(clauses, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, key.Type, key.Data, key.OwnerUserID, key.AppID)
	}
	query := `SELECT id, res_type, res_data, owner_user_id, app_id, status FROM resources
		WHERE (res_type, res_data, owner_user_id, app_id) IN (` + strings.Join(clauses, ", ") + `)`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.Type, &res.Data, &res.OwnerUserID, &res.AppID, &res.Status); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// UpsertResource registers a resource, returning the existing row when the
// identity tuple is already known.
func (r *Repository) UpsertResource(ctx context.Context, key ResourceKey) (Resource, error) {
	var res Resource
	err := r.db.QueryRow(ctx, `INSERT INTO resources (res_type, res_data, owner_user_id, app_id, status)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (res_type, res_data, owner_user_id, app_id)
		DO UPDATE SET res_type = EXCLUDED.res_type
		RETURNING id, res_type, res_data, owner_user_id, app_id, status`,
		key.Type, key.Data, key.OwnerUserID, key.AppID).
		Scan(&res.ID, &res.Type, &res.Data, &res.OwnerUserID, &res.AppID, &res.Status)
	if err != nil {
		return Resource{}, err
	}
	return res, nil
}

// UpsertResources registers a batch of resources in one round-trip,
// returning existing rows for tuples that are already known.
func (r *Repository) UpsertResources(ctx context.Context, keys []ResourceKey) ([]Resource, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*4)
	for i, key := range keys {
		base := i * 4
		clauses = append(clauses, fmt.Sprintf("($%d, $%d, $%d, $%d, 1)", base+1, base+2, base+3, base+4))
		args = append(args, key.Type, key.Data, key.OwnerUserID, key.AppID)
	}
	query := `INSERT INTO resources (res_type, res_data, owner_user_id, app_id, status)
		VALUES ` + strings.Join(clauses, ", ") + `
		ON CONFLICT (res_type, res_data, owner_user_id, app_id)
		DO UPDATE SET res_type = EXCLUDED.res_type
		RETURNING id, res_type, res_data, owner_user_id, app_id, status`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.Type, &res.Data, &res.OwnerUserID, &res.AppID, &res.Status); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// SoftDeleteResource marks a resource deleted. Rows stay behind so audit
// history keeps resolving.
func (r *Repository) SoftDeleteResource(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE resources SET status = 2 WHERE id = $1 AND status = 1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindOperations loads all operations matching the given identity tuples in
// a single round-trip.
func (r *Repository) FindOperations(ctx context.Context, keys []OperationKey) ([]Operation, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*3)
	for i, key := range keys {
		base := i * 3
		clauses = append(clauses, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, key.Key, key.OwnerUserID, key.AppID)
	}
	query := `SELECT id, op_key, owner_user_id, app_id, status FROM operations
		WHERE (op_key, owner_user_id, app_id) IN (` + strings.Join(clauses, ", ") + `)`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.Key, &op.OwnerUserID, &op.AppID, &op.Status); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// UpsertOperation registers an operation, returning the existing row when
// the identity tuple is already known.
func (r *Repository) UpsertOperation(ctx context.Context, key OperationKey) (Operation, error) {
	var op Operation
	err := r.db.QueryRow(ctx, `INSERT INTO operations (op_key, owner_user_id, app_id, status)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (op_key, owner_user_id, app_id)
		DO UPDATE SET op_key = EXCLUDED.op_key
		RETURNING id, op_key, owner_user_id, app_id, status`,
		key.Key, key.OwnerUserID, key.AppID).
		Scan(&op.ID, &op.Key, &op.OwnerUserID, &op.AppID, &op.Status)
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// GetResource loads one resource by id.
func (r *Repository) GetResource(ctx context.Context, id int64) (Resource, error) {
	var res Resource
	err := r.db.QueryRow(ctx, `SELECT id, res_type, res_data, owner_user_id, app_id, status FROM resources WHERE id = $1`, id).
		Scan(&res.ID, &res.Type, &res.Data, &res.OwnerUserID, &res.AppID, &res.Status)
	if err != nil {
		return Resource{}, err
	}
	return res, nil
}

// GetOperation loads one operation by id.
func (r *Repository) GetOperation(ctx context.Context, id int64) (Operation, error) {
	var op Operation
	err := r.db.QueryRow(ctx, `SELECT id, op_key, owner_user_id, app_id, status FROM operations WHERE id = $1`, id).
		Scan(&op.ID, &op.Key, &op.OwnerUserID, &op.AppID, &op.Status)
	if err != nil {
		return Operation{}, err
	}
	return op, nil
}

// SoftDeleteOperation marks an operation deleted.
func (r *Repository) SoftDeleteOperation(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE operations SET status = 2 WHERE id = $1 AND status = 1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
