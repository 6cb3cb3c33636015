package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-platform/aegis/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Persist stores the record header and its per-item details in one
// transaction. A failure on any detail row rolls back the whole record.
func (r *Repository) Persist(ctx context.Context, rec Record) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var recordID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO access_audit (check_id, viewer_id, relations, allowed, token_fp, device, ip, user_agent, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			rec.CheckID, rec.ViewerID, rec.Relations, rec.Allowed, rec.TokenFP, rec.Device, rec.IP, rec.UserAgent, rec.CreatedAt).
			Scan(&recordID)
		if err != nil {
			return err
		}
		for _, item := range rec.Items {
			_, err := tx.Exec(ctx,
				`INSERT INTO access_audit_items (record_id, res_type, res_data, op_key, effect, source, role_id, priority, reason)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				recordID, item.ResType, item.ResData, item.OpKey, item.Effect, item.Source, item.RoleID, item.Priority, item.Reason)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// PageRecords returns record headers matching the filters, newest first.
func (r *Repository) PageRecords(ctx context.Context, filters TimelineFilters, offset, limit int32) ([]Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, check_id, viewer_id, relations, allowed, token_fp, device, ip, user_agent, created_at
		 FROM access_audit
		 WHERE ($1 = 0 OR viewer_id = $1)
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at < $3)
		   AND ($4::boolean IS NULL OR allowed = $4)
		 ORDER BY created_at DESC, id DESC
		 OFFSET $5 LIMIT $6`,
		filters.ViewerID, nullableTime(filters.From), nullableTime(filters.To), filters.Allowed, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.CheckID, &rec.ViewerID, &rec.Relations, &rec.Allowed,
			&rec.TokenFP, &rec.Device, &rec.IP, &rec.UserAgent, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadItems attaches the per-item details for the given record ids.
func (r *Repository) LoadItems(ctx context.Context, recordIDs []int64) (map[int64][]ItemResult, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT record_id, res_type, res_data, op_key, effect, source, role_id, priority, reason
		 FROM access_audit_items WHERE record_id = ANY($1) ORDER BY id`, recordIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]ItemResult)
	for rows.Next() {
		var recordID int64
		var item ItemResult
		if err := rows.Scan(&recordID, &item.ResType, &item.ResData, &item.OpKey,
			&item.Effect, &item.Source, &item.RoleID, &item.Priority, &item.Reason); err != nil {
			return nil, err
		}
		out[recordID] = append(out[recordID], item)
	}
	return out, rows.Err()
}

// DeleteOlderThan drops records (and their details) past the retention
// cutoff, bounded per call so the job can loop without long transactions.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int32) (int64, error) {
	var deleted int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM access_audit WHERE created_at < $1 ORDER BY id LIMIT $2`, cutoff, limit)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM access_audit_items WHERE record_id = ANY($1)`, ids); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM access_audit WHERE id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
