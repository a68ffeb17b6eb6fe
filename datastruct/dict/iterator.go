package dict

// Iterator walks every entry of a Dict.
//
// A safe iterator pauses rehashing while it is live, so the caller may add, find and delete
// during the walk, including deleting the entry just returned.
// An unsafe iterator only allows Find-free reads: any structural change before Release is
// reported to Config.OnViolation.
type Iterator[K comparable, V any] struct {
	d           *Dict[K, V]
	table       int
	index       int64
	safe        bool
	entry       *Entry[K, V]
	nextEntry   *Entry[K, V]
	fingerprint uint64
}

// Iterator returns an unsafe iterator
func (d *Dict[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{
		d:     d,
		table: 0,
		index: -1,
	}
}

// SafeIterator returns an iterator which tolerates mutations of the dict
func (d *Dict[K, V]) SafeIterator() *Iterator[K, V] {
	it := d.Iterator()
	it.safe = true
	return it
}

func (it *Iterator[K, V]) started() bool {
	return !(it.index == -1 && it.table == 0)
}

// Next returns the next entry or nil at the end
func (it *Iterator[K, V]) Next() *Entry[K, V] {
	for {
		if it.entry == nil {
			if !it.started() {
				if it.safe {
					it.d.safeIterators++
				} else {
					it.fingerprint = it.d.Fingerprint()
				}
			}
			ht := &it.d.ht[it.table]
			it.index++
			if it.index >= int64(ht.size) {
				if it.d.IsRehashing() && it.table == 0 {
					it.table++
					it.index = 0
					ht = &it.d.ht[1]
				} else {
					return nil
				}
			}
			it.entry = ht.buckets[it.index]
		} else {
			it.entry = it.nextEntry
		}
		if it.entry != nil {
			// the entry returned may be deleted by the caller, remember its successor now
			it.nextEntry = it.entry.next
			return it.entry
		}
	}
}

// Release ends the iteration. Safe iterators resume rehashing, unsafe ones verify the fingerprint.
func (it *Iterator[K, V]) Release() {
	if !it.started() {
		return
	}
	if it.safe {
		it.d.safeIterators--
	} else if it.fingerprint != it.d.Fingerprint() {
		it.d.cfg.violation("dict mutated during unsafe iteration")
	}
	// make a second Release a no-op
	it.table = 0
	it.index = -1
}
