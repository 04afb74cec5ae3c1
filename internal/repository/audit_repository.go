package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-procurement/internal/platform/database"
	"github.com/pesio-ai/be-procurement/internal/platform/errors"
)

// AuditRepository appends and reads immutable audit log entries.
type AuditRepository struct {
	db database.Querier
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db database.Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The table has an update/delete prevention
// trigger so this is the only mutation operation exposed.
//
// Inside a transaction the insert runs under a savepoint, so a failed audit
// write can be rolled back without aborting the caller's transaction.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit changes")
	}

	tx, ok := r.db.(pgx.Tx)
	if !ok {
		return r.insert(ctx, r.db, entry, changesJSON)
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to open audit savepoint")
	}
	if err := r.insert(ctx, sp, entry, changesJSON); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to release audit savepoint")
	}
	return nil
}

func (r *AuditRepository) insert(ctx context.Context, q database.Querier, entry *AuditEntry, changesJSON []byte) error {
	query := `
		INSERT INTO audit_log_entries
		    (entity_type, entity_id, action,
		     actor_id, actor_username, actor_role,
		     changes, ip_address, user_agent)
		VALUES ($1, $2, $3,
		        $4, $5, $6,
		        $7, $8, $9)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.ActorID,
		entry.ActorUsername,
		entry.ActorRole,
		changesJSON,
		entry.IPAddress,
		entry.UserAgent,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, f AuditFilter) ([]*AuditEntry, int64, error) {
	query := `
		SELECT id, entity_type, entity_id, action,
		       actor_id, actor_username, actor_role,
		       changes, ip_address, user_agent, created_at
		FROM audit_log_entries
		WHERE 1=1
	`
	countQuery := `SELECT COUNT(*) FROM audit_log_entries WHERE 1=1`

	args := []any{}
	argCount := 1
	where := func(clause string, v any) {
		query += fmt.Sprintf(" AND "+clause, argCount)
		countQuery += fmt.Sprintf(" AND "+clause, argCount)
		args = append(args, v)
		argCount++
	}

	if f.EntityType != nil {
		where("entity_type = $%d", *f.EntityType)
	}
	if f.EntityID != nil {
		where("entity_id = $%d", *f.EntityID)
	}
	if f.Action != nil {
		where("action = $%d", *f.Action)
	}
	if f.ActorID != nil {
		where("actor_id = $%d", *f.ActorID)
	}

	limit, offset := pageBounds(f.Limit, f.Offset)
	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(append([]any{}, args...), limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count audit entries")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	entries, err := r.scanRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

func (r *AuditRepository) scanEntry(sc rowScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var changesJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.EntityType,
		&entry.EntityID,
		&entry.Action,
		&entry.ActorID,
		&entry.ActorUsername,
		&entry.ActorRole,
		&changesJSON,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if len(changesJSON) > 0 {
		if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit changes")
		}
	}

	return entry, nil
}
