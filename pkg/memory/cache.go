package memory

import (
	"container/list"
	"sync"

	"github.com/protagolabs/agentcore/pkg/config"
)

// ClientCache hands out memory clients keyed by (agent, user), evicting the
// least recently used entry past capacity. Clients are stateless HTTP
// wrappers, so eviction is just dropping the reference.
type ClientCache struct {
	mu       sync.Mutex
	cfg      config.MemoryConfig
	capacity int
	order    *list.List
	entries  map[cacheKey]*list.Element
}

type cacheKey struct {
	agentID string
	userID  string
}

type cacheEntry struct {
	key    cacheKey
	client *Client
}

// NewClientCache creates a cache with the given capacity.
func NewClientCache(cfg config.MemoryConfig, capacity int) *ClientCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &ClientCache{
		cfg:      cfg,
		capacity: capacity,
		order:    list.New(),
		entries:  map[cacheKey]*list.Element{},
	}
}

// Get returns the client for (agent, user), creating it on first use.
func (c *ClientCache) Get(agentID, userID string) *Client {
	key := cacheKey{agentID: agentID, userID: userID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).client
	}

	client := NewClient(c.cfg, agentID, userID)
	el := c.order.PushFront(&cacheEntry{key: key, client: client})
	c.entries[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return client
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
