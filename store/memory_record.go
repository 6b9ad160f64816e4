package store

import "context"

// MemoryRecord is a persistent fact remembered about a user within a
// conversation scope. Uniqueness is not enforced by key: memory is free
// text, deduplicated at write time by the memory service's matcher.
type MemoryRecord struct {
	ID        int64
	UID       string
	OwnerID   string
	ScopeID   string
	Content   string
	CreatedTs int64
	// ExpiresTs is nil for facts without an expiry.
	ExpiresTs *int64
}

// FindMemoryRecord is the filter for listing memory records.
type FindMemoryRecord struct {
	ID      *int64
	UID     *string
	OwnerID *string
	ScopeID *string
	// Query matches content by substring.
	Query *string
	// ExcludeExpiredBefore drops records whose expiry is at or before
	// the given unix timestamp.
	ExcludeExpiredBefore *int64
	Limit                int
	Offset               int
}

// UpdateMemoryRecord updates the content (merge on add) or expiry of a
// record identified by ID.
type UpdateMemoryRecord struct {
	ID        int64
	Content   *string
	ExpiresTs *int64
}

// DeleteMemoryRecord deletes records by ID or UID.
type DeleteMemoryRecord struct {
	ID  *int64
	UID *string
}

func (s *Store) CreateMemoryRecord(ctx context.Context, create *MemoryRecord) (*MemoryRecord, error) {
	return s.driver.CreateMemoryRecord(ctx, create)
}

func (s *Store) ListMemoryRecords(ctx context.Context, find *FindMemoryRecord) ([]*MemoryRecord, error) {
	return s.driver.ListMemoryRecords(ctx, find)
}

func (s *Store) UpdateMemoryRecord(ctx context.Context, update *UpdateMemoryRecord) error {
	return s.driver.UpdateMemoryRecord(ctx, update)
}

func (s *Store) DeleteMemoryRecord(ctx context.Context, delete *DeleteMemoryRecord) error {
	return s.driver.DeleteMemoryRecord(ctx, delete)
}
