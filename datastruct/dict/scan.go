package dict

import (
	"math/bits"
	"math/rand"
)

// GetRandomKey returns a random entry, or nil if d is empty.
// A random non-empty bucket is chosen across both generations, then a random entry of its chain.
func (d *Dict[K, V]) GetRandomKey() *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStep()
	}
	var he *Entry[K, V]
	if d.IsRehashing() {
		// buckets of ht[0] below rehashIdx are empty
		s0 := d.ht[0].size
		span := s0 + d.ht[1].size - uint64(d.rehashIdx)
		for he == nil {
			h := uint64(d.rehashIdx) + uint64(rand.Int63n(int64(span)))
			if h >= s0 {
				he = d.ht[1].buckets[h-s0]
			} else {
				he = d.ht[0].buckets[h]
			}
		}
	} else {
		for he == nil {
			h := rand.Uint64() & d.ht[0].sizemask
			he = d.ht[0].buckets[h]
		}
	}
	// count the chain then walk to a random offset
	listLen := 0
	for e := he; e != nil; e = e.next {
		listLen++
	}
	for offset := rand.Intn(listLen); offset > 0; offset-- {
		he = he.next
	}
	return he
}

// GetSomeKeys samples up to count distinct entries by walking buckets from a random offset.
// count is clamped to Len(), fewer entries are returned only if d holds fewer.
// Entries are not uniformly distributed, neighbors in the table tend to come together.
func (d *Dict[K, V]) GetSomeKeys(count int) []*Entry[K, V] {
	if size := d.Len(); count > size {
		count = size
	}
	if count <= 0 {
		return nil
	}
	for j := 0; j < count && d.IsRehashing(); j++ {
		d.rehashStep()
	}
	tables := 1
	maxSizeMask := d.ht[0].sizemask
	if d.IsRehashing() {
		tables = 2
		if d.ht[1].sizemask > maxSizeMask {
			maxSizeMask = d.ht[1].sizemask
		}
	}
	result := make([]*Entry[K, V], 0, count)
	i := rand.Uint64() & maxSizeMask
	for steps := uint64(0); steps <= maxSizeMask && len(result) < count; steps++ {
		for j := 0; j < tables; j++ {
			if tables == 2 && j == 0 && i < uint64(d.rehashIdx) {
				// already migrated
				continue
			}
			if i >= d.ht[j].size {
				continue
			}
			for he := d.ht[j].buckets[i]; he != nil && len(result) < count; he = he.next {
				result = append(result, he)
			}
		}
		i = (i + 1) & maxSizeMask
	}
	return result
}

// ScanFunc receives every entry of a visited bucket
type ScanFunc[K comparable, V any] func(entry *Entry[K, V])

// Scan visits the buckets addressed by cursor and returns the next cursor, 0 when the scan is complete.
//
// The cursor is incremented with its bits reversed, so that the buckets already visited keep
// being covered after the table grows or shrinks: every element present during the whole scan is
// returned at least once, some may be returned more than once. While rehashing, the bucket of
// the smaller generation is visited together with all the buckets of the larger generation it
// expands to. Rehashing is paused while fn runs.
func (d *Dict[K, V]) Scan(cursor uint64, fn ScanFunc[K, V]) uint64 {
	if d.Len() == 0 {
		return 0
	}
	d.safeIterators++
	defer func() {
		d.safeIterators--
	}()

	v := cursor
	if !d.IsRehashing() {
		t0 := &d.ht[0]
		m0 := t0.sizemask
		emitBucket(t0.buckets[v&m0], fn)
		// set unmasked bits so the reversed increment operates on the masked bits only
		v |= ^m0
		v = bits.Reverse64(v)
		v++
		v = bits.Reverse64(v)
		return v
	}

	t0, t1 := &d.ht[0], &d.ht[1]
	if t0.size > t1.size {
		t0, t1 = t1, t0
	}
	m0, m1 := t0.sizemask, t1.sizemask
	emitBucket(t0.buckets[v&m0], fn)
	for {
		emitBucket(t1.buckets[v&m1], fn)
		// increment the bits not covered by the smaller mask
		v |= ^m1
		v = bits.Reverse64(v)
		v++
		v = bits.Reverse64(v)
		if v&(m0^m1) == 0 {
			break
		}
	}
	return v
}

func emitBucket[K comparable, V any](he *Entry[K, V], fn ScanFunc[K, V]) {
	for he != nil {
		next := he.next
		fn(he)
		he = next
	}
}
