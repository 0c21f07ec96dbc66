package bus

import (
	"crypto/sha256"
	"sync"
	"time"
)

// dedupTTL is how long an order command frame is remembered.
const dedupTTL = 10 * time.Second

// Dedup drops byte-identical order command frames seen within a TTL, which
// happens when a producer republishes after a lost acknowledgement. It is
// safe for concurrent use.
type Dedup struct {
	mu   sync.Mutex
	seen map[[sha256.Size]byte]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewDedup creates a Dedup with the given TTL.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[[sha256.Size]byte]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen reports whether frame was already recorded within the TTL. A frame not
// seen (or expired) is recorded and false is returned. Expired entries are
// swept on every call so the map stays bounded by the command rate.
func (d *Dedup) Seen(frame []byte) bool {
	key := sha256.Sum256(frame)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}
