package dict

// Consumer is used when traversing a dict, returning false stops the traversal
type Consumer[K comparable, V any] func(key K, val V) bool

// Get returns the binding value and whether the key exists
func (d *Dict[K, V]) Get(key K) (val V, exists bool) {
	return d.FetchValue(key)
}

// Put puts key value into dict and returns the number of new inserted key-value
func (d *Dict[K, V]) Put(key K, val V) (result int) {
	added, err := d.Replace(key, val)
	if err != nil || !added {
		return 0
	}
	return 1
}

// PutIfAbsent puts value if the key does not exist and returns the number of inserted key-value
func (d *Dict[K, V]) PutIfAbsent(key K, val V) (result int) {
	if err := d.Add(key, val); err != nil {
		return 0
	}
	return 1
}

// PutIfExists puts value if the key exists and returns the number of updated key-value
func (d *Dict[K, V]) PutIfExists(key K, val V) (result int) {
	he := d.Find(key)
	if he == nil {
		return 0
	}
	d.SetVal(he, val)
	return 1
}

// Remove removes the key and returns its value, the value destructor is not called
// since the value is handed to the caller
func (d *Dict[K, V]) Remove(key K) (val V, result int) {
	he, err := d.Unlink(key)
	if err != nil {
		return val, 0
	}
	d.freeKey(he)
	return he.val, 1
}

// ForEach traverses the dict with a safe iterator, consumer may delete the visited key
func (d *Dict[K, V]) ForEach(consumer Consumer[K, V]) {
	it := d.SafeIterator()
	defer it.Release()
	for he := it.Next(); he != nil; he = it.Next() {
		if !consumer(he.key, he.val) {
			break
		}
	}
}

// Keys returns all keys in dict
func (d *Dict[K, V]) Keys() []K {
	keys := make([]K, 0, d.Len())
	it := d.Iterator()
	for he := it.Next(); he != nil; he = it.Next() {
		keys = append(keys, he.key)
	}
	it.Release()
	return keys
}

// RandomKeys randomly returns keys of the given number, may contain duplicated key
func (d *Dict[K, V]) RandomKeys(limit int) []K {
	if d.Len() == 0 || limit <= 0 {
		return nil
	}
	result := make([]K, limit)
	for i := range result {
		result[i] = d.GetRandomKey().key
	}
	return result
}

// RandomDistinctKeys randomly returns keys of the given number, won't contain duplicated key
func (d *Dict[K, V]) RandomDistinctKeys(limit int) []K {
	entries := d.GetSomeKeys(limit)
	result := make([]K, len(entries))
	for i, he := range entries {
		result[i] = he.key
	}
	return result
}
