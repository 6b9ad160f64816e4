package store

import (
	"context"
	"database/sql"
)

// Driver is the interface a store database driver implements.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// MemoryRecord model related methods.
	CreateMemoryRecord(ctx context.Context, create *MemoryRecord) (*MemoryRecord, error)
	ListMemoryRecords(ctx context.Context, find *FindMemoryRecord) ([]*MemoryRecord, error)
	UpdateMemoryRecord(ctx context.Context, update *UpdateMemoryRecord) error
	DeleteMemoryRecord(ctx context.Context, delete *DeleteMemoryRecord) error

	// ConversationState model related methods.
	UpsertConversationState(ctx context.Context, upsert *ConversationState) (*ConversationState, error)
	GetConversationState(ctx context.Context, find *FindConversationState) (*ConversationState, error)
}
