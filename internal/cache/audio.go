package cache

import (
	"container/list"
	"sync"
	"time"
)

// AudioCache maps chunk fingerprints to synthesized audio and remembers the
// order entries were inserted in. Entries are only removed by EvictBefore
// and Clear, never by size pressure, so nothing queued for playback can
// disappear underneath the player.
type AudioCache struct {
	items map[string]*list.Element
	order *list.List
	size  int64

	mu    sync.RWMutex
	stats Stats
}

// audioEntry represents an entry in the audio cache
type audioEntry struct {
	key       string
	value     []byte
	timestamp time.Time
	hits      int64
}

// NewAudioCache creates an empty audio cache.
func NewAudioCache() *AudioCache {
	return &AudioCache{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get retrieves the audio for a fingerprint.
func (c *AudioCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	entry := elem.Value.(*audioEntry)
	entry.hits++
	c.stats.Hits++
	return entry.value, true
}

// Has reports whether a fingerprint is cached without touching statistics.
func (c *AudioCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.items[key]
	return ok
}

// Put stores audio for a fingerprint. Replacing an existing entry keeps its
// original insertion position.
func (c *AudioCache) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*audioEntry)
		c.size += int64(len(value)) - int64(len(entry.value))
		entry.value = value
		entry.timestamp = time.Now()
		return
	}

	entry := &audioEntry{
		key:       key,
		value:     value,
		timestamp: time.Now(),
	}
	c.items[key] = c.order.PushBack(entry)
	c.size += int64(len(value))
}

// EvictBefore removes every entry inserted before key and returns how many
// were removed. It is a no-op when key is absent or is the first entry.
func (c *AudioCache) EvictBefore(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, ok := c.items[key]
	if !ok {
		return 0
	}

	evicted := 0
	for elem := c.order.Front(); elem != nil && elem != target; {
		next := elem.Next()
		c.removeElement(elem)
		evicted++
		elem = next
	}

	if evicted > 0 {
		c.stats.Evictions += int64(evicted)
		c.stats.LastEvict = time.Now()
	}
	return evicted
}

// Clear removes all entries from the cache.
func (c *AudioCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
}

// Delete removes a single entry.
func (c *AudioCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of entries.
func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Size returns the current cache size in bytes.
func (c *AudioCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.size
}

// Keys returns all fingerprints in insertion order.
func (c *AudioCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*audioEntry).key)
	}
	return keys
}

// Stats returns cache statistics.
func (c *AudioCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = c.size
	stats.ItemCount = int64(len(c.items))
	stats.updateHitRate()
	return stats
}

// Open resolves a memory media URI against the cache.
func (c *AudioCache) Open(uri string) ([]byte, error) {
	key, err := ParseMediaURI(uri)
	if err != nil {
		return nil, err
	}
	data, ok := c.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

// removeElement removes an element from the cache (must be called with lock held).
func (c *AudioCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*audioEntry)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.value))
}
