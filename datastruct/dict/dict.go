// Package dict implements the hash table backing the keyspace and hash values.
// A Dict holds two generations of buckets so that growing or shrinking is spread over many
// operations: every access migrates at most one bucket from the old generation to the new one.
package dict

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrKeyExists is returned by Add when the key is already present
	ErrKeyExists = errors.New("dict: key exists")
	// ErrKeyNotFound is returned by Delete when the key is absent
	ErrKeyNotFound = errors.New("dict: key not found")
	// ErrRehashing is returned by Expand while a rehash is in progress
	ErrRehashing = errors.New("dict: rehashing in progress")
	// ErrInvalidSize is returned by Expand when the requested size cannot hold the current keys
	ErrInvalidSize = errors.New("dict: invalid size")
	// ErrResizeDisabled is returned by Resize while resizing is disabled
	ErrResizeDisabled = errors.New("dict: resize disabled")
	// ErrOutOfMemory is returned when a bucket array exceeds Config.MaxTableSize
	ErrOutOfMemory = errors.New("dict: out of memory")
)

// Type customizes hashing, comparison and ownership of keys and values
type Type[K comparable, V any] struct {
	Hash func(key K) uint64
	// KeyDup copies keys on insert, nil means the key is stored as is
	KeyDup func(key K) K
	// ValDup copies values on insert, nil means the value is stored as is
	ValDup func(val V) V
	// KeyCompare reports key equality, nil means ==
	KeyCompare    func(a, b K) bool
	KeyDestructor func(key K)
	ValDestructor func(val V)
}

// Entry is a key value pair living in a bucket chain
type Entry[K comparable, V any] struct {
	key  K
	val  V
	next *Entry[K, V]
}

// Key returns the key of entry
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Value returns the value of entry
func (e *Entry[K, V]) Value() V {
	return e.val
}

// table is one generation of buckets
type table[K comparable, V any] struct {
	buckets  []*Entry[K, V]
	size     uint64
	sizemask uint64
	used     uint64
	// id identifies the bucket array for fingerprints
	id uint64
}

// Dict is a chained hash table with incremental rehashing. It is not safe for concurrent use.
type Dict[K comparable, V any] struct {
	typ *Type[K, V]
	cfg *Config
	ht  [2]table[K, V]
	// rehashIdx is the next bucket of ht[0] to migrate, -1 when not rehashing
	rehashIdx int64
	// safeIterators counts live safe iterators and scans, rehashing pauses while it is positive
	safeIterators int
	tableSeq      uint64
}

// New creates an empty Dict, no bucket is allocated before the first insert
func New[K comparable, V any](typ *Type[K, V], cfg *Config) *Dict[K, V] {
	if typ == nil || typ.Hash == nil {
		panic("dict: type without hash function")
	}
	if cfg == nil {
		cfg = DefaultConfig
	}
	return &Dict[K, V]{
		typ:       typ,
		cfg:       cfg,
		rehashIdx: -1,
	}
}

// Config returns the runtime context of d
func (d *Dict[K, V]) Config() *Config {
	return d.cfg
}

// Len returns the number of entries
func (d *Dict[K, V]) Len() int {
	return int(d.ht[0].used + d.ht[1].used)
}

// Slots returns the number of buckets over both generations
func (d *Dict[K, V]) Slots() int {
	return int(d.ht[0].size + d.ht[1].size)
}

// IsRehashing reports whether entries are being migrated between generations
func (d *Dict[K, V]) IsRehashing() bool {
	return d.rehashIdx != -1
}

// RehashIndex returns the rehash cursor, -1 when not rehashing
func (d *Dict[K, V]) RehashIndex() int64 {
	return d.rehashIdx
}

// TableSizes returns the bucket count of the old and new generation
func (d *Dict[K, V]) TableSizes() (uint64, uint64) {
	return d.ht[0].size, d.ht[1].size
}

func (d *Dict[K, V]) compareKeys(a, b K) bool {
	if d.typ.KeyCompare != nil {
		return d.typ.KeyCompare(a, b)
	}
	return a == b
}

func (d *Dict[K, V]) dupKey(key K) K {
	if d.typ.KeyDup != nil {
		return d.typ.KeyDup(key)
	}
	return key
}

func (d *Dict[K, V]) dupVal(val V) V {
	if d.typ.ValDup != nil {
		return d.typ.ValDup(val)
	}
	return val
}

func (d *Dict[K, V]) freeKey(e *Entry[K, V]) {
	if d.typ.KeyDestructor != nil {
		d.typ.KeyDestructor(e.key)
	}
}

func (d *Dict[K, V]) freeVal(e *Entry[K, V]) {
	if d.typ.ValDestructor != nil {
		d.typ.ValDestructor(e.val)
	}
}

func nextPower(size uint64) uint64 {
	if size >= math.MaxInt64 {
		return math.MaxInt64 + 1
	}
	i := uint64(InitialSize)
	for i < size {
		i *= 2
	}
	return i
}

func (d *Dict[K, V]) newTable(size uint64) table[K, V] {
	d.tableSeq++
	return table[K, V]{
		buckets:  make([]*Entry[K, V], size),
		size:     size,
		sizemask: size - 1,
		id:       d.tableSeq,
	}
}

// Expand creates a generation able to hold minSize entries.
// The first allocation becomes the main table directly, later ones start a rehash.
func (d *Dict[K, V]) Expand(minSize uint64) error {
	if d.IsRehashing() {
		return ErrRehashing
	}
	if d.ht[0].used > minSize {
		return ErrInvalidSize
	}
	realSize := nextPower(minSize)
	if realSize == d.ht[0].size {
		return ErrInvalidSize
	}
	if realSize > d.cfg.MaxTableSize {
		d.cfg.oom(realSize)
		return ErrOutOfMemory
	}
	t := d.newTable(realSize)
	if d.ht[0].buckets == nil {
		d.ht[0] = t
		return nil
	}
	d.ht[1] = t
	d.rehashIdx = 0
	return nil
}

// Resize shrinks or grows the table to the smallest size holding all entries
func (d *Dict[K, V]) Resize() error {
	if !d.cfg.resizeEnabled {
		return ErrResizeDisabled
	}
	if d.IsRehashing() {
		return ErrRehashing
	}
	minimal := d.ht[0].used
	if minimal < InitialSize {
		minimal = InitialSize
	}
	return d.Expand(minimal)
}

func (d *Dict[K, V]) expandIfNeeded() error {
	if d.IsRehashing() {
		return nil
	}
	if d.ht[0].size == 0 {
		return d.Expand(InitialSize)
	}
	used, size := d.ht[0].used, d.ht[0].size
	if used >= size && (d.cfg.resizeEnabled || used/size > d.cfg.ForceResizeRatio) {
		return d.Expand(used * 2)
	}
	return nil
}

// Rehash migrates up to n non-empty buckets and reports whether more work remains.
// It visits at most n*10 empty buckets. While a safe iterator is live nothing is migrated.
func (d *Dict[K, V]) Rehash(n int) bool {
	if !d.IsRehashing() {
		return false
	}
	if d.safeIterators > 0 {
		return true
	}
	emptyVisits := n * 10
	for ; n > 0 && d.ht[0].used != 0; n-- {
		// ht[0].used != 0 makes sure rehashIdx stays in range
		for d.ht[0].buckets[d.rehashIdx] == nil {
			d.rehashIdx++
			emptyVisits--
			if emptyVisits == 0 {
				return true
			}
		}
		de := d.ht[0].buckets[d.rehashIdx]
		for de != nil {
			next := de.next
			idx := d.typ.Hash(de.key) & d.ht[1].sizemask
			de.next = d.ht[1].buckets[idx]
			d.ht[1].buckets[idx] = de
			d.ht[0].used--
			d.ht[1].used++
			de = next
		}
		d.ht[0].buckets[d.rehashIdx] = nil
		d.rehashIdx++
	}
	if d.ht[0].used == 0 {
		d.ht[0] = d.ht[1]
		d.ht[1] = table[K, V]{}
		d.rehashIdx = -1
		return false
	}
	return true
}

// RehashMilliseconds rehashes in steps of 100 buckets until done or ms elapsed.
// Returns the number of steps performed times 100.
func (d *Dict[K, V]) RehashMilliseconds(ms int) int {
	if d.safeIterators > 0 {
		return 0
	}
	start := time.Now()
	budget := time.Duration(ms) * time.Millisecond
	rehashes := 0
	for d.Rehash(100) {
		rehashes += 100
		if time.Since(start) > budget {
			break
		}
	}
	return rehashes
}

func (d *Dict[K, V]) rehashStep() {
	if d.safeIterators == 0 {
		d.Rehash(1)
	}
}

// keyIndex returns the bucket index a new key goes to, or the entry already holding key
func (d *Dict[K, V]) keyIndex(key K, hash uint64) (uint64, *Entry[K, V], error) {
	if err := d.expandIfNeeded(); err != nil {
		return 0, nil, err
	}
	var idx uint64
	for t := 0; t <= 1; t++ {
		idx = hash & d.ht[t].sizemask
		for he := d.ht[t].buckets[idx]; he != nil; he = he.next {
			if d.compareKeys(key, he.key) {
				return idx, he, nil
			}
		}
		if !d.IsRehashing() {
			break
		}
	}
	return idx, nil, nil
}

// addRaw inserts an entry without value. If the key exists it returns the existing entry and ErrKeyExists.
func (d *Dict[K, V]) addRaw(key K) (*Entry[K, V], *Entry[K, V], error) {
	if d.IsRehashing() {
		d.rehashStep()
	}
	idx, existing, err := d.keyIndex(key, d.typ.Hash(key))
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, existing, ErrKeyExists
	}
	// new entries go to the new generation while rehashing
	ht := &d.ht[0]
	if d.IsRehashing() {
		ht = &d.ht[1]
	}
	entry := &Entry[K, V]{
		key:  d.dupKey(key),
		next: ht.buckets[idx],
	}
	ht.buckets[idx] = entry
	ht.used++
	return entry, nil, nil
}

// Add inserts key with val, returns ErrKeyExists if key is present
func (d *Dict[K, V]) Add(key K, val V) error {
	entry, _, err := d.addRaw(key)
	if err != nil {
		return err
	}
	entry.val = d.dupVal(val)
	return nil
}

// AddOrFind returns the entry of key, inserting an entry with zero value if absent
func (d *Dict[K, V]) AddOrFind(key K) (*Entry[K, V], error) {
	entry, existing, err := d.addRaw(key)
	if existing != nil {
		return existing, nil
	}
	return entry, err
}

// Replace sets key to val. Returns true if the key was added, false if an existing value was replaced.
func (d *Dict[K, V]) Replace(key K, val V) (bool, error) {
	entry, existing, err := d.addRaw(key)
	if err == nil {
		entry.val = d.dupVal(val)
		return true, nil
	}
	if existing == nil {
		return false, err
	}
	d.SetVal(existing, val)
	return false, nil
}

// SetVal installs val into entry then destroys the previous value
func (d *Dict[K, V]) SetVal(entry *Entry[K, V], val V) {
	old := *entry
	entry.val = d.dupVal(val)
	d.freeVal(&old)
}

// Find returns the entry holding key or nil
func (d *Dict[K, V]) Find(key K) *Entry[K, V] {
	if d.Len() == 0 {
		return nil
	}
	if d.IsRehashing() {
		d.rehashStep()
	}
	hash := d.typ.Hash(key)
	for t := 0; t <= 1; t++ {
		idx := hash & d.ht[t].sizemask
		for he := d.ht[t].buckets[idx]; he != nil; he = he.next {
			if d.compareKeys(key, he.key) {
				return he
			}
		}
		if !d.IsRehashing() {
			return nil
		}
	}
	return nil
}

// FetchValue returns the value bound to key
func (d *Dict[K, V]) FetchValue(key K) (V, bool) {
	he := d.Find(key)
	if he == nil {
		var zero V
		return zero, false
	}
	return he.val, true
}

func (d *Dict[K, V]) genericDelete(key K, noFree bool) (*Entry[K, V], error) {
	if d.Len() == 0 {
		return nil, ErrKeyNotFound
	}
	if d.IsRehashing() {
		d.rehashStep()
	}
	hash := d.typ.Hash(key)
	for t := 0; t <= 1; t++ {
		idx := hash & d.ht[t].sizemask
		var prev *Entry[K, V]
		for he := d.ht[t].buckets[idx]; he != nil; he = he.next {
			if d.compareKeys(key, he.key) {
				if prev != nil {
					prev.next = he.next
				} else {
					d.ht[t].buckets[idx] = he.next
				}
				if !noFree {
					d.freeKey(he)
					d.freeVal(he)
				}
				d.ht[t].used--
				return he, nil
			}
			prev = he
		}
		if !d.IsRehashing() {
			break
		}
	}
	return nil, ErrKeyNotFound
}

// Delete removes key, running the key and value destructors
func (d *Dict[K, V]) Delete(key K) error {
	_, err := d.genericDelete(key, false)
	return err
}

// Unlink removes key without running destructors, the caller must call FreeUnlinkedEntry
func (d *Dict[K, V]) Unlink(key K) (*Entry[K, V], error) {
	return d.genericDelete(key, true)
}

// FreeUnlinkedEntry runs the destructors of an entry returned by Unlink
func (d *Dict[K, V]) FreeUnlinkedEntry(he *Entry[K, V]) {
	if he == nil {
		return
	}
	d.freeKey(he)
	d.freeVal(he)
}

// Clear removes every entry. callback, if not nil, is invoked every 65536 buckets so that
// long clears can yield to other work.
func (d *Dict[K, V]) Clear(callback func()) {
	for t := 0; t <= 1; t++ {
		for i, he := range d.ht[t].buckets {
			if callback != nil && i&65535 == 0 {
				callback()
			}
			for he != nil {
				next := he.next
				d.freeKey(he)
				d.freeVal(he)
				he = next
			}
		}
		d.ht[t] = table[K, V]{}
	}
	d.rehashIdx = -1
}

// Release frees every entry, d stays usable as an empty dict
func (d *Dict[K, V]) Release() {
	d.Clear(nil)
}

// Fingerprint hashes the structural state of d: identity, size and used count of both generations.
// An unsafe iterator compares it on release to detect forbidden mutations.
func (d *Dict[K, V]) Fingerprint() uint64 {
	integers := [6]uint64{
		d.ht[0].id, d.ht[0].size, d.ht[0].used,
		d.ht[1].id, d.ht[1].size, d.ht[1].used,
	}
	var hash uint64
	for _, v := range integers {
		hash += v
		// Tomas Wang's 64 bit integer hash
		hash = (^hash) + (hash << 21)
		hash ^= hash >> 24
		hash = (hash + (hash << 3)) + (hash << 8)
		hash ^= hash >> 14
		hash = (hash + (hash << 2)) + (hash << 4)
		hash ^= hash >> 28
		hash += hash << 31
	}
	return hash
}
