package hub

import (
	"errors"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

// ErrSessionExists is returned by Register when the session id is taken.
var ErrSessionExists = errors.New("session already registered")

const shardCount = 16

type registryShard struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// Registry tracks live clients by session id. Clients are spread across
// shards so register, unregister and snapshot on different sessions rarely
// contend; no shard lock is held while frames are delivered.
type Registry struct {
	shards [shardCount]*registryShard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{clients: make(map[string]*Client)}
	}
	return r
}

func (r *Registry) shard(id string) *registryShard {
	return r.shards[xxhash.Sum64String(id)%shardCount]
}

// Register adds c. It is a no-op returning ErrSessionExists if c.ID is
// already present.
func (r *Registry) Register(c *Client) error {
	s := r.shard(c.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID]; ok {
		return ErrSessionExists
	}
	s.clients[c.ID] = c
	return nil
}

// Unregister removes the session. It reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return false
	}
	delete(s.clients, id)
	return true
}

// Get returns the client for id.
func (r *Registry) Get(id string) (*Client, bool) {
	s := r.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// Snapshot copies the current membership. Mutations after the call do not
// affect the returned slice.
func (r *Registry) Snapshot() []*Client {
	out := make([]*Client, 0, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for _, c := range s.clients {
			out = append(out, c)
		}
		s.mu.RUnlock()
	}
	return out
}

// Usernames returns the distinct usernames of live sessions, sorted.
func (r *Registry) Usernames() []string {
	names := lo.Uniq(lo.Map(r.Snapshot(), func(c *Client, _ int) string {
		return c.Username
	}))
	slices.Sort(names)
	return names
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.clients)
		s.mu.RUnlock()
	}
	return n
}
