package runtime

import (
	"hash/fnv"
	"sync"

	"market-chat/contract"
	"market-chat/domain"
)

var _ contract.IRegistry = (*Registry)(nil)

const shardCount = 32

type Set map[string]contract.Connection

type shard struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]Set // map user -> connection id -> connection
}

// Registry tracks which live connections are bound to which user.
// Users are spread over shards so that joins of unrelated users never contend.
// A connection is bound to at most one user at a time.
type Registry struct {
	shards [shardCount]*shard
	owners sync.Map // map connection id -> user
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[domain.UserID]Set)}
	}
	return r
}

func (r *Registry) shardFor(userID domain.UserID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Join binds conn to userID. Joining twice is a no-op,
// joining under another user moves the connection.
func (r *Registry) Join(userID domain.UserID, conn contract.Connection) {
	if previous, loaded := r.owners.Swap(conn.ID(), userID); loaded && previous.(domain.UserID) != userID {
		r.remove(previous.(domain.UserID), conn.ID())
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[userID]; !ok {
		s.sessions[userID] = make(Set)
	}
	s.sessions[userID][conn.ID()] = conn
}

// Leave unbinds conn from whichever user it was bound to.
// Leaving an unknown connection is a no-op.
func (r *Registry) Leave(conn contract.Connection) {
	owner, loaded := r.owners.LoadAndDelete(conn.ID())
	if !loaded {
		return
	}
	r.remove(owner.(domain.UserID), conn.ID())
}

// ConnectionsFor returns a snapshot of the connections currently bound to userID.
// Returns nil if the user has no live connection.
func (r *Registry) ConnectionsFor(userID domain.UserID) []contract.Connection {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	connections := make([]contract.Connection, 0, len(members))
	for _, conn := range members {
		connections = append(connections, conn)
	}
	return connections
}

// Count returns the number of bound connections, used by monitoring.
func (r *Registry) Count() int {
	var count int
	for _, s := range r.shards {
		s.mu.RLock()
		for _, members := range s.sessions {
			count += len(members)
		}
		s.mu.RUnlock()
	}
	return count
}

func (r *Registry) remove(userID domain.UserID, connID string) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if members, ok := s.sessions[userID]; ok {
		delete(members, connID)
		// No empty sets are left behind
		if len(members) == 0 {
			delete(s.sessions, userID)
		}
	}
}
