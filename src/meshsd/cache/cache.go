// Package cache implements the record cache (C2): records keyed by
// lowercased name, at most one record per (name, type, class) triple,
// TTL-driven expiry via a reaper.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/kestrel-oss/meshsd/src/meshsd/record"
)

// Cache stores records keyed by lowercased owner name. Concurrent add/get
// are safe; Clean is serialized against itself and, while it sweeps, holds
// the write lock, so readers wait for it.
type Cache struct {
	m       sync.RWMutex
	buckets map[string][]*record.Record

	cleanM sync.Mutex
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		buckets: make(map[string][]*record.Record),
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

// Add inserts r, replacing any existing record matching r's (name, type,
// class) triple (with dns.TypeANY/dns.ClassANY wildcarding either side).
func (c *Cache) Add(r *record.Record) {
	c.m.Lock()
	defer c.m.Unlock()

	k := key(r.Name())
	bucket := c.buckets[k]

	for i, existing := range bucket {
		if record.SameType(existing.Type(), r.Type()) && record.SameClass(existing.Class(), r.Class()) {
			bucket[i] = r
			return
		}
	}

	c.buckets[k] = append(bucket, r)
}

// Expire sets the TTL of every record matching r's (name, type, class) to
// record.ExpiryTTL, timestamped at now, so the reaper removes it in a
// bounded, observable time. It does not mutate r or any Record in place;
// each match is replaced with the shortened-TTL copy.
func (c *Cache) Expire(r *record.Record, now time.Time) {
	c.m.Lock()
	defer c.m.Unlock()

	k := key(r.Name())
	bucket := c.buckets[k]

	for i, existing := range bucket {
		if record.SameType(existing.Type(), r.Type()) && record.SameClass(existing.Class(), r.Class()) {
			bucket[i] = existing.WithTTL(now, record.ExpiryTTL)
		}
	}
}

// Get returns the first record under name matching (rtype, class), with
// dns.TypeANY/dns.ClassANY wildcarding either side.
func (c *Cache) Get(name string, rtype, class uint16) (*record.Record, bool) {
	c.m.RLock()
	defer c.m.RUnlock()

	for _, r := range c.buckets[key(name)] {
		if record.SameType(r.Type(), rtype) && record.SameClass(r.Class(), class) {
			return r, true
		}
	}

	return nil, false
}

// GetAll returns every record under name matching (rtype, class).
func (c *Cache) GetAll(name string, rtype, class uint16) []*record.Record {
	c.m.RLock()
	defer c.m.RUnlock()

	var out []*record.Record
	for _, r := range c.buckets[key(name)] {
		if record.SameType(r.Type(), rtype) && record.SameClass(r.Class(), class) {
			out = append(out, r)
		}
	}

	return out
}

// Entries returns every record under name (case-insensitive), regardless of
// type or class.
func (c *Cache) Entries(name string) []*record.Record {
	c.m.RLock()
	defer c.m.RUnlock()

	bucket := c.buckets[key(name)]
	out := make([]*record.Record, len(bucket))
	copy(out, bucket)
	return out
}

// RemoveAll drops the entire bucket for name.
func (c *Cache) RemoveAll(name string) {
	c.m.Lock()
	defer c.m.Unlock()

	delete(c.buckets, key(name))
}

// Clean removes expired records and empty buckets, as observed at now.
// Serialized against concurrent Clean calls; the sweep itself holds the
// write lock, so readers and writers wait until it finishes.
func (c *Cache) Clean(now time.Time) {
	c.cleanM.Lock()
	defer c.cleanM.Unlock()

	c.m.Lock()
	defer c.m.Unlock()

	for k, bucket := range c.buckets {
		live := bucket[:0:0]
		for _, r := range bucket {
			if !r.Expired(now) {
				live = append(live, r)
			}
		}

		if len(live) == 0 {
			delete(c.buckets, k)
		} else {
			c.buckets[k] = live
		}
	}
}

// Clear drops every record from the cache.
func (c *Cache) Clear() {
	c.m.Lock()
	defer c.m.Unlock()

	c.buckets = make(map[string][]*record.Record)
}
