package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wsu2059q/qvqchat/internal/errors"
	"github.com/wsu2059q/qvqchat/store"
)

// Service is the memory store facade: structured persistence plus
// matcher-assisted natural-language add and forget.
type Service struct {
	store   *store.Store
	matcher Matcher
	now     func() time.Time
}

// NewService creates a memory service backed by the given store and
// matcher.
func NewService(s *store.Store, matcher Matcher) *Service {
	return &Service{
		store:   s,
		matcher: matcher,
		now:     time.Now,
	}
}

// WithClock replaces the service clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) scanRecords(ctx context.Context, owner, scope string) ([]*store.MemoryRecord, error) {
	nowTs := s.now().Unix()
	return s.store.ListMemoryRecords(ctx, &store.FindMemoryRecord{
		OwnerID:              &owner,
		ScopeID:              &scope,
		ExcludeExpiredBefore: &nowTs,
		Limit:                maxScanRecords,
	})
}

// Add remembers a fact. When the matcher finds an existing record that
// overlaps with high confidence, that record is updated in place
// instead of inserting a near-duplicate.
func (s *Service) Add(ctx context.Context, owner, scope, content string) (*store.MemoryRecord, error) {
	existing, err := s.scanRecords(ctx, owner, scope)
	if err != nil {
		return nil, err
	}

	matches, err := s.matcher.Match(ctx, content, existing)
	if err != nil {
		// Matching is best effort: fall through to a plain insert.
		slog.Warn("memory add matching failed, inserting without dedup", "error", err)
		matches = nil
	}

	if len(matches) > 0 && matches[0].Confidence >= MergeThreshold {
		record := matches[0].Record
		slog.Debug("memory add merged into existing record",
			"uid", record.UID,
			"confidence", matches[0].Confidence)
		if err := s.store.UpdateMemoryRecord(ctx, &store.UpdateMemoryRecord{
			ID:      record.ID,
			Content: &content,
		}); err != nil {
			return nil, err
		}
		record.Content = content
		return record, nil
	}

	return s.store.CreateMemoryRecord(ctx, &store.MemoryRecord{
		UID:       uuid.NewString(),
		OwnerID:   owner,
		ScopeID:   scope,
		Content:   content,
		CreatedTs: s.now().Unix(),
	})
}

// Forget removes records matching the reference text above the forget
// threshold and returns how many were removed. Zero matches is not an
// error: the ambiguity is resolved by doing nothing and logging.
func (s *Service) Forget(ctx context.Context, owner, scope, reference string) (int, error) {
	existing, err := s.scanRecords(ctx, owner, scope)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}

	matches, err := s.matcher.Match(ctx, reference, existing)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, m := range matches {
		if m.Confidence < ForgetThreshold {
			continue
		}
		if err := s.store.DeleteMemoryRecord(ctx, &store.DeleteMemoryRecord{ID: &m.Record.ID}); err != nil {
			return removed, err
		}
		removed++
	}

	if removed == 0 {
		ambiguous := errors.MemoryAmbiguous("forget matched no records").
			WithContext("reference", truncateForLog(reference, 50))
		slog.Info("memory forget resolved to no-op", "detail", ambiguous.Error())
	}
	return removed, nil
}

// Query returns the most recent unexpired records for prompt injection,
// newest first.
func (s *Service) Query(ctx context.Context, owner, scope string, limit int) ([]*store.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > maxScanRecords {
		limit = maxScanRecords
	}

	nowTs := s.now().Unix()
	return s.store.ListMemoryRecords(ctx, &store.FindMemoryRecord{
		OwnerID:              &owner,
		ScopeID:              &scope,
		ExcludeExpiredBefore: &nowTs,
		Limit:                limit,
	})
}
