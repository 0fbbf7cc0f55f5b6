// Package cache keeps synthesized audio clips in memory so repeated
// assistant replies skip the synthesis round trip.
package cache

import (
	"container/list"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/parley/internal/audio"
)

// DefaultCapacity is the number of clips kept before the oldest is evicted.
const DefaultCapacity = 50

// Normalize maps reply text to its cache key. Lookups and inserts must agree
// on this, so both go through here.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

type entry struct {
	key     string
	clip    *audio.Clip
	pins    int
	evicted bool
}

// AudioCache is a fixed-capacity FIFO cache of audio clips keyed by
// normalized reply text. Insertion order alone decides eviction; hits do not
// refresh an entry's position.
//
// Entries can be pinned while they are playing. Evicting a pinned entry
// defers the clip's release until the last Unpin, so playback never loses
// its data underneath it.
type AudioCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = oldest
	items    map[string]*list.Element
	orphans  []*entry // evicted while pinned, released on last Unpin
	bytes    int
}

// New creates a cache holding at most capacity clips. A capacity of zero or
// less returns nil, which callers treat as caching disabled.
func New(capacity int) *AudioCache {
	if capacity <= 0 {
		return nil
	}
	return &AudioCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the clip stored for text, if any. The key is normalized before
// lookup. A hit does not change eviction order.
func (c *AudioCache) Get(text string) (*audio.Clip, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[Normalize(text)]
	if !ok {
		return nil, false
	}
	return el.Value.(*entry).clip, true
}

// Put stores a clip under the normalized key, evicting the oldest entry when
// the cache is full. Storing an existing key replaces the clip in place and
// keeps the entry's position. The cache takes ownership of the clip.
func (c *AudioCache) Put(text string, clip *audio.Clip) {
	if c == nil || clip == nil {
		return
	}
	key := Normalize(text)
	if key == "" {
		clip.Release()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		if e.clip == clip {
			return
		}
		c.bytes -= e.clip.Size()
		if e.pins > 0 {
			// The old clip may still be playing; its pins move with it
			// and drain through Unpin.
			c.orphans = append(c.orphans, &entry{key: e.key, clip: e.clip, pins: e.pins, evicted: true})
			e.pins = 0
		} else {
			e.clip.Release()
		}
		e.clip = clip
		c.bytes += clip.Size()
		return
	}

	for c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	el := c.order.PushBack(&entry{key: key, clip: clip})
	c.items[key] = el
	c.bytes += clip.Size()
}

// Pin marks the entry for text as in use, preventing its clip from being
// released while pinned. Returns false when the key is not cached.
func (c *AudioCache) Pin(text string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[Normalize(text)]
	if !ok {
		return false
	}
	el.Value.(*entry).pins++
	return true
}

// Unpin drops one pin from the entry for text. If the entry was evicted
// while pinned, the last Unpin releases the clip.
func (c *AudioCache) Unpin(text string) {
	if c == nil {
		return
	}
	key := Normalize(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		if e.pins > 0 {
			e.pins--
			return
		}
		// Resident but unpinned: the pin being returned belongs to a clip
		// this key used to hold, so fall through to the orphan scan.
	}

	// The entry may have been evicted while pinned; it is tracked in the
	// orphan list until its pins drain.
	for i, e := range c.orphans {
		if e.key != key {
			continue
		}
		e.pins--
		if e.pins <= 0 {
			e.clip.Release()
			c.orphans = append(c.orphans[:i], c.orphans[i+1:]...)
		}
		return
	}
}

// Len returns the number of cached clips.
func (c *AudioCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Bytes returns the total payload size of cached clips.
func (c *AudioCache) Bytes() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Clear evicts everything, releasing all unpinned clips.
func (c *AudioCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.order.Len() > 0 {
		c.evictOldest()
	}
}

// evictOldest removes the front entry. Callers hold c.mu.
func (c *AudioCache) evictOldest() {
	el := c.order.Front()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
	c.bytes -= e.clip.Size()

	if e.pins > 0 {
		e.evicted = true
		c.orphans = append(c.orphans, e)
		log.Debug("evicted pinned clip, deferring release", "key", e.key, "pins", e.pins)
		return
	}
	e.clip.Release()
}
