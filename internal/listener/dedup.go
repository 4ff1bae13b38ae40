package listener

// EventID uniquely identifies one on-chain event occurrence.
type EventID struct {
	TxHash   string
	LogIndex uint
}

// DedupeCache is a fixed-capacity, insertion-ordered set of seen event
// identifiers. When the cache grows past capacity the oldest-inserted entry
// is evicted; there is no TTL. A capacity of zero (or less) means nothing is
// ever remembered: every Admit returns true and no memory is held.
//
// Not safe for concurrent use. The listener's poll loop is the only writer,
// so no locking is needed.
type DedupeCache struct {
	capacity int
	seen     map[EventID]struct{}
	order    []EventID // insertion order
	head     int       // eviction index into order
}

// NewDedupeCache creates a cache remembering up to capacity identifiers.
func NewDedupeCache(capacity int) *DedupeCache {
	if capacity < 0 {
		capacity = 0
	}
	return &DedupeCache{
		capacity: capacity,
		seen:     make(map[EventID]struct{}, capacity),
	}
}

// Admit reports whether id is being seen for the first time, inserting it if
// so. A false return means the event was already delivered and must be
// dropped. Never blocks.
func (c *DedupeCache) Admit(id EventID) bool {
	if c.capacity <= 0 {
		return true
	}
	if _, ok := c.seen[id]; ok {
		return false
	}

	c.seen[id] = struct{}{}
	c.order = append(c.order, id)

	if len(c.seen) > c.capacity {
		oldest := c.order[c.head]
		delete(c.seen, oldest)
		c.head++
		c.compact()
	}
	return true
}

// Len returns the number of identifiers currently remembered.
func (c *DedupeCache) Len() int {
	return len(c.seen)
}

// compact reclaims the evicted prefix of the order queue once it dominates
// the slice, keeping memory bounded by capacity rather than total inserts.
func (c *DedupeCache) compact() {
	if c.head > 1024 && c.head*2 > len(c.order) {
		remaining := make([]EventID, len(c.order)-c.head)
		copy(remaining, c.order[c.head:])
		c.order = remaining
		c.head = 0
	}
}
