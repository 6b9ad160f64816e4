// Package memory provides the persistent fact store for the chat core:
// natural-language add/forget backed by a pluggable semantic matcher,
// and retrieval for prompt injection.
package memory

import (
	"context"

	"github.com/wsu2059q/qvqchat/store"
)

// Match is one existing record scored against a piece of text.
type Match struct {
	Record     *store.MemoryRecord
	Confidence float64
}

// Matcher scores existing records against new content or a forget
// reference. Implementations may call a model; tests substitute a
// deterministic stub.
type Matcher interface {
	// Match returns matches ordered best first. An empty slice means
	// nothing related was found.
	Match(ctx context.Context, text string, records []*store.MemoryRecord) ([]Match, error)
}

// Matching thresholds. An add merges into an existing record above
// MergeThreshold; a forget removes records above ForgetThreshold.
const (
	MergeThreshold  = 0.8
	ForgetThreshold = 0.6
)

// maxScanRecords caps how many records a matcher scans per operation.
const maxScanRecords = 100
