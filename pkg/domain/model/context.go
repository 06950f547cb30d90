package model

import (
	"time"

	"github.com/secmon-lab/mnemos/pkg/domain/types"
)

// PreferenceSchemaVersion identifies the shape of Preference values. Bump it
// when the key-to-value schema changes and add a migration in
// MigratePreference.
const PreferenceSchemaVersion = 1

// Preference is a typed user preference derived from preference-category
// memories. Keys are unique per context; the most recent value wins.
type Preference struct {
	Key           string
	Value         string
	SchemaVersion int
	UpdatedAt     time.Time
}

// MigratePreference upgrades a preference recorded under an older schema
// version to the current one. Version 1 is the initial schema, so this is
// currently the identity for valid versions.
func MigratePreference(p Preference) Preference {
	if p.SchemaVersion == 0 {
		p.SchemaVersion = PreferenceSchemaVersion
	}
	return p
}

// ConversationMemoryContext is the merged memory view handed to the chat
// pipeline before query enhancement. It is transient: recomputed on every
// cache miss and never persisted.
type ConversationMemoryContext struct {
	ConversationID    string
	SessionID         string
	RelevantMemories  []*MemoryItem
	EntityMentions    []string
	TopicContinuity   []string
	UserPreferences   map[string]Preference
	ConversationStage types.Stage
}

// NewEmptyContext returns the fail-open context used when the memory backend
// is unreachable: no memories, greeting stage.
func NewEmptyContext(conversationID, sessionID string) *ConversationMemoryContext {
	return &ConversationMemoryContext{
		ConversationID:    conversationID,
		SessionID:         sessionID,
		RelevantMemories:  []*MemoryItem{},
		EntityMentions:    []string{},
		TopicContinuity:   []string{},
		UserPreferences:   map[string]Preference{},
		ConversationStage: types.StageGreeting,
	}
}
