// Package notes stores per-session observation notes and synthesizes SOAP
// drafts for physician review.
package notes

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store holds the live observation notes for intake sessions. Sessions are
// bounded by an LRU cache; eviction of long-idle sessions is acceptable for
// this in-memory store.
type Store interface {
	// Get returns the current notes for a session, empty string if none.
	Get(sessionID string) string

	// Overwrite replaces the session's notes with the coerced, normalized
	// rendering of raw and returns the stored text.
	Overwrite(sessionID string, raw any) string

	// Append merges delta into the session's notes and returns the stored
	// text. Empty deltas are a no-op.
	Append(sessionID string, delta string) string

	// Delete drops the session's notes.
	Delete(sessionID string)
}

type lruStore struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, string]
	maxLen int
}

// NewStore creates a notes store bounded to maxSessions entries, capping
// each session's notes at maxNotesLen characters (tail kept).
func NewStore(maxSessions, maxNotesLen int) Store {
	cache, err := lru.New[string, string](maxSessions)
	if err != nil {
		// This should never happen with a valid size, but we'll panic if it does
		// since this is a programming error
		panic(err)
	}

	return &lruStore{
		cache:  cache,
		maxLen: maxNotesLen,
	}
}

func (s *lruStore) Get(sessionID string) string {
	text, _ := s.cache.Get(sessionID)

	return text
}

func (s *lruStore) Overwrite(sessionID string, raw any) string {
	text := capTail(Normalize(CoerceText(raw)), s.maxLen)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(sessionID, text)

	return text
}

func (s *lruStore) Append(sessionID string, delta string) string {
	if delta == "" {
		return s.Get(sessionID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _ := s.cache.Get(sessionID)
	chunk := Normalize(delta)

	// Multi-line content stacks on new lines; single-line fragments read
	// better joined with a space.
	joiner := " "
	if strings.Contains(existing, "\n") || strings.Contains(chunk, "\n") {
		joiner = "\n"
	}

	merged := chunk
	if existing != "" {
		merged = existing + joiner + chunk
	}
	merged = capTail(strings.TrimSpace(merged), s.maxLen)

	s.cache.Add(sessionID, merged)

	return merged
}

func (s *lruStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(sessionID)
}
