package registry

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/muurk/fieldsync/internal/protocol"
)

// ErrDuplicateID is returned by Add when the id is already registered.
var ErrDuplicateID = errors.New("player ID already exists")

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	players map[string]protocol.Player
}

// Registry is the set of joined players keyed by id. Operations on different
// ids proceed in parallel; there is no registry-wide lock.
type Registry struct {
	shards [shardCount]shard
	now    func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i].players = make(map[string]protocol.Player)
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.shards[h.Sum32()%shardCount]
}

// Add registers p. It fails with ErrDuplicateID if p.ID is present and leaves
// the existing entry untouched.
func (r *Registry) Add(p protocol.Player) error {
	s := r.shardFor(p.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[p.ID]; exists {
		return ErrDuplicateID
	}
	s.players[p.ID] = p
	return nil
}

// Remove deletes the player and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[id]; !exists {
		return false
	}
	delete(s.players, id)
	return true
}

// Move clamps the position into the field, stores it, refreshes LastSeen and
// returns the updated player. It returns false if id is not registered.
func (r *Registry) Move(id string, x, y float64) (protocol.Player, bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.players[id]
	if !exists {
		return protocol.Player{}, false
	}
	p.X, p.Y = Clamp(x, y)
	p.LastSeen = r.now().Unix()
	s.players[id] = p
	return p, true
}

// Rename replaces the nickname. Any string is accepted.
func (r *Registry) Rename(id, nickname string) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.players[id]
	if !exists {
		return false
	}
	p.Nickname = nickname
	s.players[id] = p
	return true
}

// Get returns a copy of the player.
func (r *Registry) Get(id string) (protocol.Player, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.players[id]
	return p, exists
}

// Snapshot returns a copy of every registered player. Shards are read one at
// a time, so concurrent writers may be reflected for some shards and not
// others, but every returned Player is a complete value. Order is unspecified.
func (r *Registry) Snapshot() []protocol.Player {
	out := make([]protocol.Player, 0, r.Len())
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, p := range s.players {
			out = append(out, p)
		}
		s.mu.RUnlock()
	}
	return out
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.players)
		s.mu.RUnlock()
	}
	return n
}
