// Package presence tracks which identities currently hold a live session.
package presence

import (
	"time"

	"github.com/google/uuid"
)

// Entry is the presence record for one identity.
type Entry struct {
	UserID    uuid.UUID `json:"userId"`
	Username  string    `json:"username"`
	SessionID uuid.UUID `json:"socketId"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Registry maps identity to its most recent session. It is not safe for
// concurrent use: the realtime hub owns it and touches it only from its run
// loop.
type Registry struct {
	entries map[uuid.UUID]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]Entry)}
}

// Register inserts or overwrites the entry for e.UserID. The superseded entry,
// if any, is returned; its session is not touched.
func (r *Registry) Register(e Entry) (prev Entry, replaced bool) {
	prev, replaced = r.entries[e.UserID]
	r.entries[e.UserID] = e
	return prev, replaced
}

// Unregister removes the entry. Removing an absent identity is a no-op.
func (r *Registry) Unregister(userID uuid.UUID) {
	delete(r.entries, userID)
}

func (r *Registry) Lookup(userID uuid.UUID) (Entry, bool) {
	e, ok := r.entries[userID]
	return e, ok
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.entries[userID]
	return ok
}

// Size is the number of distinct online identities.
func (r *Registry) Size() int {
	return len(r.entries)
}
