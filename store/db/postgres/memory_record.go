package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wsu2059q/qvqchat/store"
)

func (d *DB) CreateMemoryRecord(ctx context.Context, create *store.MemoryRecord) (*store.MemoryRecord, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	fields := []string{"uid", "owner_id", "scope_id", "content", "created_ts", "expires_ts"}
	args := []any{
		create.UID,
		create.OwnerID,
		create.ScopeID,
		create.Content,
		create.CreatedTs,
		create.ExpiresTs,
	}

	stmt := `INSERT INTO memory_record (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`

	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create memory_record: %w", err)
	}

	return create, nil
}

func (d *DB) ListMemoryRecords(ctx context.Context, find *store.FindMemoryRecord) ([]*store.MemoryRecord, error) {
	if find == nil {
		return nil, fmt.Errorf("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}
	if find.ScopeID != nil {
		where, args = append(where, "scope_id = "+placeholder(len(args)+1)), append(args, *find.ScopeID)
	}
	if find.Query != nil && *find.Query != "" {
		where = append(where, "content ILIKE "+placeholder(len(args)+1))
		args = append(args, "%"+*find.Query+"%")
	}
	if find.ExcludeExpiredBefore != nil {
		where = append(where, "(expires_ts IS NULL OR expires_ts > "+placeholder(len(args)+1)+")")
		args = append(args, *find.ExcludeExpiredBefore)
	}

	query := `SELECT id, uid, owner_id, scope_id, content, created_ts, expires_ts
		FROM memory_record WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`

	limit := find.Limit
	if limit > 0 {
		if limit > 1000 {
			limit = 1000
		}
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if find.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", find.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory_records: %w", err)
	}
	defer rows.Close()

	list := make([]*store.MemoryRecord, 0)
	for rows.Next() {
		r := &store.MemoryRecord{}
		if err := rows.Scan(
			&r.ID,
			&r.UID,
			&r.OwnerID,
			&r.ScopeID,
			&r.Content,
			&r.CreatedTs,
			&r.ExpiresTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory_record: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateMemoryRecord(ctx context.Context, update *store.UpdateMemoryRecord) error {
	set, args := []string{}, []any{}

	if update.Content != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *update.Content)
	}
	if update.ExpiresTs != nil {
		set, args = append(set, "expires_ts = "+placeholder(len(args)+1)), append(args, *update.ExpiresTs)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE memory_record SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update memory_record: %w", err)
	}

	return nil
}

func (d *DB) DeleteMemoryRecord(ctx context.Context, delete *store.DeleteMemoryRecord) error {
	where, args := []string{}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *delete.UID)
	}
	if len(where) == 0 {
		return fmt.Errorf("delete requires an id or uid")
	}

	stmt := `DELETE FROM memory_record WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to delete memory_record: %w", err)
	}

	return nil
}
