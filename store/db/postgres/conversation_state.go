package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wsu2059q/qvqchat/store"
)

func (d *DB) UpsertConversationState(ctx context.Context, upsert *store.ConversationState) (*store.ConversationState, error) {
	if upsert.UpdatedTs == 0 {
		upsert.UpdatedTs = time.Now().Unix()
	}

	stmt := `INSERT INTO conversation_state (owner_id, scope_id, payload, updated_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (owner_id, scope_id) DO UPDATE SET payload = EXCLUDED.payload, updated_ts = EXCLUDED.updated_ts`

	if _, err := d.db.ExecContext(ctx, stmt, upsert.OwnerID, upsert.ScopeID, upsert.Payload, upsert.UpdatedTs); err != nil {
		return nil, fmt.Errorf("failed to upsert conversation_state: %w", err)
	}

	return upsert, nil
}

func (d *DB) GetConversationState(ctx context.Context, find *store.FindConversationState) (*store.ConversationState, error) {
	stmt := `SELECT owner_id, scope_id, payload, updated_ts
		FROM conversation_state WHERE owner_id = ` + placeholder(1) + ` AND scope_id = ` + placeholder(2)

	state := &store.ConversationState{}
	err := d.db.QueryRowContext(ctx, stmt, find.OwnerID, find.ScopeID).Scan(
		&state.OwnerID,
		&state.ScopeID,
		&state.Payload,
		&state.UpdatedTs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation_state: %w", err)
	}

	return state, nil
}
