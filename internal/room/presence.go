package room

import (
	"time"

	"quizroom-service/internal/domain"
)

// presenceTracker maps connection identities back to participants for one
// room. It is only touched from the room worker, so no locking is needed;
// the map is keyed per room and never shared across rooms.
type presenceTracker struct {
	byConn map[string]string // connection id -> participant id
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{byConn: make(map[string]string)}
}

// attach binds a connection to a participant. A participant rejoining with a
// new connection keeps its record; the old connection identity is forgotten.
func (t *presenceTracker) attach(p *domain.Participant, connID string, now time.Time) {
	if p.ConnectionID != "" && p.ConnectionID != connID {
		delete(t.byConn, p.ConnectionID)
	}
	p.ConnectionID = connID
	p.LastActive = now
	t.byConn[connID] = p.ID
}

// detach clears the connection identity for the owning participant, keeping
// score and answer history intact. Returns the participant id, if any.
func (t *presenceTracker) detach(connID string) (string, bool) {
	pid, ok := t.byConn[connID]
	if !ok {
		return "", false
	}
	delete(t.byConn, connID)
	return pid, true
}

// lookup resolves a connection to its participant id.
func (t *presenceTracker) lookup(connID string) (string, bool) {
	pid, ok := t.byConn[connID]
	return pid, ok
}
