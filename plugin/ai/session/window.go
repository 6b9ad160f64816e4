package session

import (
	"context"
	"sync"
	"time"
)

// Message is one turn of recent conversation kept for prompt context.
type Message struct {
	Role       string
	SenderName string
	Content    string
	Timestamp  time.Time
}

// Window keeps a sliding window of recent messages per scope, in
// memory only. Thread-safe for concurrent access.
type Window struct {
	mu     sync.RWMutex
	scopes map[string]*scopeData
	size   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type scopeData struct {
	messages   []Message
	lastAccess time.Time
}

// NewWindow creates a sliding context window keeping at most size
// messages per scope (default 10).
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Window{
		scopes: make(map[string]*scopeData),
		size:   size,
		ctx:    ctx,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.cleanupLoop()
	return w
}

// Close stops the cleanup goroutine.
func (w *Window) Close() {
	w.cancel()
	w.wg.Wait()
}

// Append records a message for a scope, evicting the oldest entries
// beyond the window size.
func (w *Window) Append(scopeID string, msg Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	scope, ok := w.scopes[scopeID]
	if !ok {
		scope = &scopeData{messages: make([]Message, 0, w.size)}
		w.scopes[scopeID] = scope
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	scope.messages = append(scope.messages, msg)
	scope.lastAccess = time.Now()

	if len(scope.messages) > w.size {
		scope.messages = scope.messages[len(scope.messages)-w.size:]
	}
}

// Recent returns up to limit most recent messages for a scope. A copy
// is returned so callers cannot mutate the window.
func (w *Window) Recent(scopeID string, limit int) []Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	scope, ok := w.scopes[scopeID]
	if !ok || len(scope.messages) == 0 {
		return []Message{}
	}

	scope.lastAccess = time.Now()

	messages := scope.messages
	if limit > 0 && limit < len(messages) {
		messages = messages[len(messages)-limit:]
	}

	result := make([]Message, len(messages))
	copy(result, messages)
	return result
}

// Clear drops all messages for a scope.
func (w *Window) Clear(scopeID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.scopes, scopeID)
}

// ScopeCount returns the number of scopes currently tracked.
func (w *Window) ScopeCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.scopes)
}

// cleanupLoop periodically removes scopes inactive for over an hour.
func (w *Window) cleanupLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			now := time.Now()
			for scopeID, scope := range w.scopes {
				if now.Sub(scope.lastAccess) > time.Hour {
					delete(w.scopes, scopeID)
				}
			}
			w.mu.Unlock()
		}
	}
}
