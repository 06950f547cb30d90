package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/mnemos/pkg/domain/types"
)

// MemoryID is a UUID-based identifier for MemoryItem
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// MemoryItem represents a persisted unit of conversational memory.
// Content is stored post-sanitization; the item never holds raw PII once
// PIIRedacted is set. ExpiresAt is derived from the retention table at write
// time and is never recomputed afterwards.
type MemoryItem struct {
	ID              MemoryID
	Content         string
	Category        types.Category
	Scope           types.Scope
	SessionID       string
	UserID          string
	ConversationID  string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	PIIRedacted     bool
	RequiresConsent bool
}

// Clone returns a deep copy of the item
func (m *MemoryItem) Clone() *MemoryItem {
	copied := *m
	return &copied
}

// Turn is a single conversational exchange submitted for persistence
type Turn struct {
	Role    string
	Content string
}

// ScoredItem pairs a memory item with a backend-reported relevance score
type ScoredItem struct {
	Item  *MemoryItem
	Score float64
}
