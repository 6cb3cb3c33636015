package roles

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Candidate lookup queries. Each method is one round-trip and maps to one
// cache key family; the resolver batches ids so a whole check batch costs at
// most one query per family.

// candidateColumns derives positivity inline: deny-all rows carry Deny,
// other broad rows carry Allow.
const broadCandidateColumns = `r.id, r.owner_user_id, r.app_id, r.user_range, r.res_range, r.priority,
	CASE WHEN r.res_range = 2 THEN 2 ELSE 1 END`

const listedCandidateColumns = `r.id, r.owner_user_id, r.app_id, r.user_range, r.res_range, r.priority,
	p.positivity, p.res_id, p.op_id`

// PublicGlobal returns system-wide broad roles for a user range.
func (r *Repository) PublicGlobal(ctx context.Context, userRange UserRange) ([]Candidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+broadCandidateColumns+` FROM roles r
		 WHERE r.owner_user_id = 0 AND r.user_range = $1 AND r.res_range IN (1, 2) AND r.status = 1`,
		userRange)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBroadCandidates(rows)
}

// PublicByOps returns listed-range public roles holding a permission on any
// of the given operations.
func (r *Repository) PublicByOps(ctx context.Context, userRange UserRange, opIDs []int64) ([]Candidate, error) {
	if len(opIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+listedCandidateColumns+` FROM roles r
		 JOIN permissions p ON p.role_id = r.id AND p.status = 1
		 WHERE r.user_range = $1 AND r.res_range IN (4, 5) AND r.status = 1 AND p.op_id = ANY($2)`,
		userRange, opIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListedCandidates(rows)
}

// PublicByOwners returns owner-scoped broad roles for the given resource
// owners.
func (r *Repository) PublicByOwners(ctx context.Context, userRange UserRange, ownerIDs []int64) ([]Candidate, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+broadCandidateColumns+` FROM roles r
		 WHERE r.user_range = $1 AND r.owner_user_id = ANY($2) AND r.res_range IN (1, 2, 3) AND r.status = 1`,
		userRange, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBroadCandidates(rows)
}

// RelationCandidates returns the roles one owner declared under one relation
// key, flattened: broad roles yield one row, listed roles one row per
// permission.
func (r *Repository) RelationCandidates(ctx context.Context, ownerUserID int64, relationKey string) ([]Candidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.owner_user_id, r.app_id, r.user_range, r.res_range, r.priority,
			COALESCE(p.positivity, CASE WHEN r.res_range = 2 THEN 2 ELSE 1 END),
			COALESCE(p.res_id, 0), COALESCE(p.op_id, 0)
		 FROM roles r
		 LEFT JOIN permissions p ON p.role_id = r.id AND p.status = 1 AND r.res_range IN (4, 5)
		 WHERE r.user_range = 3 AND r.owner_user_id = $1 AND r.relation_key = $2 AND r.status = 1`,
		ownerUserID, relationKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.RoleID, &c.OwnerUserID, &c.AppID, &c.UserRange, &c.ResRange, &c.Priority,
			&c.Positivity, &c.ResID, &c.OpID); err != nil {
			return nil, err
		}
		// A listed role without permissions flattens to a row that matches
		// nothing; drop it.
		if c.ResRange.Listed() && c.ResID == 0 {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UserGlobal returns broad roles granted directly to a viewer through live
// role_users rows.
func (r *Repository) UserGlobal(ctx context.Context, viewerID int64, now time.Time) ([]Candidate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+broadCandidateColumns+`, ru.timeout FROM roles r
		 JOIN role_users ru ON ru.role_id = r.id AND ru.status = 1
		 WHERE ru.user_id = $1 AND (ru.timeout = 0 OR ru.timeout > $2)
		   AND r.user_range = 4 AND r.res_range IN (1, 2) AND r.status = 1`,
		viewerID, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrantedBroadCandidates(rows)
}

// UserByOps returns listed-range granted roles holding a permission on any
// of the given operations.
func (r *Repository) UserByOps(ctx context.Context, viewerID int64, opIDs []int64, now time.Time) ([]Candidate, error) {
	if len(opIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+listedCandidateColumns+`, ru.timeout FROM roles r
		 JOIN role_users ru ON ru.role_id = r.id AND ru.status = 1
		 JOIN permissions p ON p.role_id = r.id AND p.status = 1
		 WHERE ru.user_id = $1 AND (ru.timeout = 0 OR ru.timeout > $2)
		   AND r.user_range = 4 AND r.res_range IN (4, 5) AND r.status = 1 AND p.op_id = ANY($3)`,
		viewerID, now.Unix(), opIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.RoleID, &c.OwnerUserID, &c.AppID, &c.UserRange, &c.ResRange, &c.Priority,
			&c.Positivity, &c.ResID, &c.OpID, &c.Timeout); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UserByOwners returns owner-self granted roles for the given resource
// owners.
func (r *Repository) UserByOwners(ctx context.Context, viewerID int64, ownerIDs []int64, now time.Time) ([]Candidate, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+broadCandidateColumns+`, ru.timeout FROM roles r
		 JOIN role_users ru ON ru.role_id = r.id AND ru.status = 1
		 WHERE ru.user_id = $1 AND (ru.timeout = 0 OR ru.timeout > $2)
		   AND r.user_range = 4 AND r.owner_user_id = ANY($3) AND r.res_range = 3 AND r.status = 1`,
		viewerID, now.Unix(), ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrantedBroadCandidates(rows)
}

func collectBroadCandidates(rows pgx.Rows) ([]Candidate, error) {
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.RoleID, &c.OwnerUserID, &c.AppID, &c.UserRange, &c.ResRange, &c.Priority, &c.Positivity); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func collectGrantedBroadCandidates(rows pgx.Rows) ([]Candidate, error) {
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.RoleID, &c.OwnerUserID, &c.AppID, &c.UserRange, &c.ResRange, &c.Priority, &c.Positivity, &c.Timeout); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func collectListedCandidates(rows pgx.Rows) ([]Candidate, error) {
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.RoleID, &c.OwnerUserID, &c.AppID, &c.UserRange, &c.ResRange, &c.Priority,
			&c.Positivity, &c.ResID, &c.OpID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
