package dict

import (
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hdt3213/redict/lib/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intType = &Type[int, int]{
	Hash: func(key int) uint64 {
		return uint64(key)
	},
}

func makeIntDict() *Dict[int, int] {
	return New(intType, NewConfig())
}

func TestPut(t *testing.T) {
	d := MakeSimple[int]()
	count := 100
	for i := 0; i < count; i++ {
		key := "k" + strconv.Itoa(i)
		ret := d.Put(key, i)
		if ret != 1 {
			t.Error("put test failed: expected result 1, actual: " + strconv.Itoa(ret) + ", key: " + key)
		}
		val, ok := d.Get(key)
		if !ok || val != i {
			t.Error("put test failed: expected " + strconv.Itoa(i) + ", actual: " + strconv.Itoa(val) + ", key: " + key)
		}
	}
	if ret := d.Put("k1", -1); ret != 0 {
		t.Error("update should return 0")
	}
	if val, _ := d.Get("k1"); val != -1 {
		t.Errorf("expect -1, actual %d", val)
	}
	if d.Len() != count {
		t.Errorf("expect %d, actual %d", count, d.Len())
	}
}

func TestPutIfAbsent(t *testing.T) {
	d := MakeSimple[int]()
	for i := 0; i < 100; i++ {
		key := "k" + strconv.Itoa(i)
		if ret := d.PutIfAbsent(key, i); ret != 1 {
			t.Error("put test failed: expected result 1, actual: " + strconv.Itoa(ret) + ", key: " + key)
		}
		if ret := d.PutIfAbsent(key, i*10); ret != 0 {
			t.Error("put test failed: expected result 0, actual: " + strconv.Itoa(ret))
		}
		if val, _ := d.Get(key); val != i {
			t.Errorf("expect %d, actual %d", i, val)
		}
	}
}

func TestPutIfExists(t *testing.T) {
	d := MakeSimple[string]()
	key := utils.RandString(5)
	val := key + "1"
	if ret := d.PutIfExists(key, val); ret != 0 {
		t.Error("expect 0")
		return
	}
	d.Put(key, val)
	val = key + "2"
	if ret := d.PutIfExists(key, val); ret != 1 {
		t.Error("expect 1")
		return
	}
	if v, _ := d.Get(key); v != val {
		t.Error("wrong value")
	}
}

func TestRemove(t *testing.T) {
	d := MakeSimple[int]()
	totalCount := 100
	for i := 0; i < totalCount; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	for i := 0; i < totalCount; i++ {
		key := "k" + strconv.Itoa(i)
		val, ret := d.Remove(key)
		if ret != 1 || val != i {
			t.Errorf("remove %s: expect (%d, 1), actual (%d, %d)", key, i, val, ret)
		}
		if _, ok := d.Get(key); ok {
			t.Errorf("%s should be removed", key)
		}
		if d.Len() != totalCount-i-1 {
			t.Errorf("expect len %d, actual %d", totalCount-i-1, d.Len())
		}
	}
	if _, ret := d.Remove("missing"); ret != 0 {
		t.Error("remove missing key should return 0")
	}
}

func TestForEachAndKeys(t *testing.T) {
	d := MakeSimple[int]()
	var expectKeys []string
	for i := 0; i < 100; i++ {
		key := "k" + strconv.Itoa(i)
		d.Put(key, i)
		expectKeys = append(expectKeys, key)
	}
	sort.Strings(expectKeys)
	keys := d.Keys()
	sort.Strings(keys)
	if diff := cmp.Diff(expectKeys, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	i := 0
	d.ForEach(func(key string, val int) bool {
		if key != "k"+strconv.Itoa(val) {
			t.Errorf("unexpected pair %s %d", key, val)
		}
		i++
		return i < 10
	})
	if i != 10 {
		t.Errorf("expect traversal to stop at 10, actual %d", i)
	}
}

func TestRandomKeys(t *testing.T) {
	d := MakeSimple[int]()
	for i := 0; i < 100; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	if keys := d.RandomKeys(150); len(keys) != 150 {
		t.Errorf("expect 150 random keys, actual %d", len(keys))
	}
	keys := d.RandomDistinctKeys(50)
	if len(keys) != 50 {
		t.Errorf("expect 50 random keys, actual %d", len(keys))
	}
	seen := make(map[string]struct{})
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			t.Errorf("duplicated key %s", k)
		}
		seen[k] = struct{}{}
	}
	if keys := d.RandomDistinctKeys(1000); len(keys) != 100 {
		t.Errorf("expect clamped to 100 keys, actual %d", len(keys))
	}
}

func TestIntegerKeysGrowAndShrink(t *testing.T) {
	d := makeIntDict()
	sizes := make(map[uint64]bool)
	for i := 1; i <= 20; i++ {
		require.NoError(t, d.Add(i, i*10))
		s0, s1 := d.TableSizes()
		sizes[s0] = true
		sizes[s1] = true
		require.Equal(t, i, d.Len())
	}
	assert.True(t, sizes[4], "initial size must be 4")
	assert.True(t, sizes[8], "expected resize crossing load factor at size 4")
	assert.True(t, sizes[16], "expected resize crossing load factor at size 8")

	for i := 1; i <= 10; i++ {
		require.NoError(t, d.Delete(i))
	}
	for i := 1; i <= 10; i++ {
		_, ok := d.FetchValue(i)
		assert.False(t, ok, "key %d should be deleted", i)
	}
	for i := 11; i <= 20; i++ {
		val, ok := d.FetchValue(i)
		assert.True(t, ok, "key %d should exist", i)
		assert.Equal(t, i*10, val)
	}
	assert.Equal(t, 10, d.Len())
}

func TestExpectedErrors(t *testing.T) {
	d := makeIntDict()
	for i := 0; i < 8; i++ {
		require.NoError(t, d.Add(i, i))
	}
	assert.True(t, errors.Is(d.Add(3, 3), ErrKeyExists))
	assert.True(t, errors.Is(d.Delete(100), ErrKeyNotFound))
	for d.IsRehashing() {
		d.Rehash(1)
	}
	assert.True(t, errors.Is(d.Expand(2), ErrInvalidSize))
	require.NoError(t, d.Expand(64))
	assert.True(t, d.IsRehashing())
	assert.True(t, errors.Is(d.Expand(128), ErrRehashing))
}

func TestForceResizeRatio(t *testing.T) {
	d := makeIntDict()
	d.Config().DisableResize()
	for i := 0; i < 24; i++ {
		require.NoError(t, d.Add(i, i))
	}
	s0, s1 := d.TableSizes()
	assert.Equal(t, uint64(4), s0)
	assert.Equal(t, uint64(0), s1)
	assert.False(t, d.IsRehashing())

	// 24/4 > 5 forces the expansion even though resizing is disabled
	require.NoError(t, d.Add(24, 24))
	s0, s1 = d.TableSizes()
	assert.True(t, d.IsRehashing() || s0 == 64)
	assert.True(t, s1 == 64 || s0 == 64)
	assert.True(t, errors.Is(d.Resize(), ErrResizeDisabled))
}

func TestResize(t *testing.T) {
	d := makeIntDict()
	for i := 0; i < 100; i++ {
		_ = d.Add(i, i)
	}
	for i := 0; i < 95; i++ {
		_ = d.Delete(i)
	}
	for d.IsRehashing() {
		d.Rehash(100)
	}
	require.NoError(t, d.Resize())
	for d.Rehash(1) {
	}
	s0, _ := d.TableSizes()
	assert.Equal(t, uint64(8), s0)
	for i := 95; i < 100; i++ {
		_, ok := d.FetchValue(i)
		assert.True(t, ok)
	}
}

func TestRehashCompletenessFuzz(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	d := MakeSimple[int]()
	model := make(map[string]int)
	for op := 0; op < 3000; op++ {
		key := "key:" + strconv.Itoa(r.Intn(600))
		switch r.Intn(10) {
		case 0, 1, 2:
			_, err := d.Unlink(key)
			_, existed := model[key]
			if existed != (err == nil) {
				t.Fatalf("op %d: delete %s mismatch, existed %v err %v", op, key, existed, err)
			}
			delete(model, key)
		case 3:
			_ = d.Resize()
		case 4:
			_ = d.Expand(uint64(r.Intn(2048)))
		default:
			d.Put(key, op)
			model[key] = op
		}
		if d.Len() != len(model) {
			t.Fatalf("op %d: expect len %d, actual %d", op, len(model), d.Len())
		}
		for k, v := range model {
			actual, ok := d.FetchValue(k)
			if !ok || actual != v {
				t.Fatalf("op %d: key %s lost (rehashing=%v)", op, k, d.IsRehashing())
			}
		}
	}
}

// chainLenAt counts the entries that the next Rehash(n) call is expected to migrate
func chainLenAt[K comparable, V any](d *Dict[K, V], n int) uint64 {
	var total uint64
	idx := d.rehashIdx
	emptyVisits := n * 10
	for ; n > 0 && idx < int64(d.ht[0].size); n-- {
		for idx < int64(d.ht[0].size) && d.ht[0].buckets[idx] == nil {
			idx++
			emptyVisits--
			if emptyVisits == 0 {
				return total
			}
		}
		if idx >= int64(d.ht[0].size) {
			break
		}
		for he := d.ht[0].buckets[idx]; he != nil; he = he.next {
			total++
		}
		idx++
	}
	return total
}

func TestRehashBoundedStep(t *testing.T) {
	d := MakeSimple[int]()
	for i := 0; i < 500; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	for d.IsRehashing() {
		d.Rehash(1)
	}
	require.NoError(t, d.Expand(4096))
	require.True(t, d.IsRehashing())

	calls := 0
	for {
		expected := chainLenAt(d, 3)
		before := d.ht[1].used
		more := d.Rehash(3)
		calls++
		if !more {
			break
		}
		assert.Equal(t, expected, d.ht[1].used-before, "call %d migrated more than 3 buckets", calls)
	}
	assert.False(t, d.IsRehashing())
	assert.False(t, d.Rehash(3), "nothing left to do")
	_, s1 := d.TableSizes()
	assert.Equal(t, uint64(0), s1)
	assert.Equal(t, 500, d.Len())
	assert.True(t, calls > 1)
}

func TestSafeIteratorPausesRehash(t *testing.T) {
	d := MakeSimple[int]()
	for i := 0; i < 64; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	for d.IsRehashing() {
		d.Rehash(1)
	}
	require.NoError(t, d.Expand(1024))

	it := d.SafeIterator()
	require.NotNil(t, it.Next())
	idx := d.RehashIndex()
	s0, s1 := d.TableSizes()

	for i := 64; i < 80; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	d.Find("k3")
	_ = d.Delete("k5")
	assert.True(t, d.Rehash(100))
	assert.Equal(t, 0, d.RehashMilliseconds(10))

	n0, n1 := d.TableSizes()
	assert.Equal(t, idx, d.RehashIndex())
	assert.Equal(t, s0, n0)
	assert.Equal(t, s1, n1)

	it.Release()
	d.Rehash(1)
	assert.NotEqual(t, idx, d.RehashIndex())
}

func TestSafeIteratorDeleteCurrent(t *testing.T) {
	d := MakeSimple[int]()
	for i := 0; i < 300; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	visited := 0
	it := d.SafeIterator()
	for he := it.Next(); he != nil; he = it.Next() {
		visited++
		require.NoError(t, d.Delete(he.Key()))
	}
	it.Release()
	assert.Equal(t, 300, visited)
	assert.Equal(t, 0, d.Len())
}

func TestUnsafeIteratorFingerprint(t *testing.T) {
	cfg := NewConfig()
	var violations []string
	cfg.OnViolation = func(msg string) {
		violations = append(violations, msg)
	}
	d := New(StringType[int](cfg), cfg)
	for i := 0; i < 4; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}

	// read only iteration passes the check
	it := d.Iterator()
	for he := it.Next(); he != nil; he = it.Next() {
	}
	it.Release()
	assert.Empty(t, violations)

	it = d.Iterator()
	require.NotNil(t, it.Next())
	for i := 4; i < 16; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	it.Release()
	require.Len(t, violations, 1)

	// the default handler panics
	d2 := New(StringType[int](nil), nil)
	d2.Put("a", 1)
	it2 := d2.Iterator()
	it2.Next()
	d2.Put("b", 2)
	assert.Panics(t, func() {
		it2.Release()
	})
}

func TestScanAtLeastOnce(t *testing.T) {
	d := MakeSimple[int]()
	stable := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		key := "stable:" + strconv.Itoa(i)
		d.Put(key, i)
		stable[key] = true
	}
	for d.IsRehashing() {
		d.Rehash(100)
	}

	seen := make(map[string]int)
	var cursor uint64
	round := 0
	for {
		cursor = d.Scan(cursor, func(e *Entry[string, int]) {
			seen[e.Key()]++
		})
		// grow the table in the middle of the scan, then churn volatile keys
		for i := 0; i < 50; i++ {
			d.Put("volatile:"+strconv.Itoa(round*50+i), i)
		}
		if round%3 == 0 {
			_ = d.Delete("volatile:" + strconv.Itoa(round*25))
		}
		round++
		if cursor == 0 {
			break
		}
	}
	for key := range stable {
		if seen[key] == 0 {
			t.Errorf("key %s was not returned by scan", key)
		}
	}
}

func TestScanDuringShrink(t *testing.T) {
	d := MakeSimple[int]()
	for i := 0; i < 2000; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	for d.IsRehashing() {
		d.Rehash(100)
	}
	seen := make(map[string]bool)
	var cursor uint64
	round := 0
	for {
		cursor = d.Scan(cursor, func(e *Entry[string, int]) {
			seen[e.Key()] = true
		})
		if round == 3 {
			for i := 100; i < 2000; i++ {
				_ = d.Delete("k" + strconv.Itoa(i))
			}
			require.NoError(t, d.Resize())
		}
		round++
		if cursor == 0 {
			break
		}
	}
	for i := 0; i < 100; i++ {
		assert.True(t, seen["k"+strconv.Itoa(i)], "k%d missed", i)
	}
}

func TestGetRandomKey(t *testing.T) {
	d := MakeSimple[int]()
	assert.Nil(t, d.GetRandomKey())
	for i := 0; i < 10; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	_ = d.Expand(256)
	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		he := d.GetRandomKey()
		require.NotNil(t, he)
		seen[he.Key()] = true
	}
	assert.Len(t, seen, 10)
}

func TestGetSomeKeysWhileRehashing(t *testing.T) {
	d := MakeSimple[int]()
	for i := 0; i < 200; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	for d.IsRehashing() {
		d.Rehash(100)
	}
	require.NoError(t, d.Expand(4096))
	d.Rehash(5)
	require.True(t, d.IsRehashing())
	entries := d.GetSomeKeys(150)
	assert.Len(t, entries, 150)
	distinct := make(map[string]bool)
	for _, e := range entries {
		distinct[e.Key()] = true
	}
	assert.Len(t, distinct, 150)
	assert.Len(t, d.GetSomeKeys(500), 200)
	assert.Nil(t, MakeSimple[int]().GetSomeKeys(3))
}

func TestReplaceInstallsBeforeDestroy(t *testing.T) {
	var d *Dict[string, *string]
	var destroyed []string
	typ := &Type[string, *string]{
		Hash: StringHash(0),
		ValDestructor: func(val *string) {
			current, _ := d.FetchValue("key")
			if current == val {
				t.Error("old value destroyed before the new one was installed")
			}
			destroyed = append(destroyed, *val)
		},
	}
	d = New(typ, NewConfig())
	v1, v2 := "v1", "v2"
	added, err := d.Replace("key", &v1)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = d.Replace("key", &v2)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"v1"}, destroyed)
	val, _ := d.FetchValue("key")
	assert.Equal(t, "v2", *val)
}

func TestDestructors(t *testing.T) {
	var keys, vals int
	typ := &Type[string, int]{
		Hash:          StringHash(7),
		KeyDup:        func(key string) string { return strings.Clone(key) },
		KeyDestructor: func(string) { keys++ },
		ValDestructor: func(int) { vals++ },
	}
	d := New(typ, NewConfig())
	for i := 0; i < 10; i++ {
		_ = d.Add("k"+strconv.Itoa(i), i)
	}
	_ = d.Delete("k0")
	assert.Equal(t, 1, keys)
	assert.Equal(t, 1, vals)

	he, err := d.Unlink("k1")
	require.NoError(t, err)
	assert.Equal(t, 1, keys)
	d.FreeUnlinkedEntry(he)
	assert.Equal(t, 2, keys)

	callbacks := 0
	d.Clear(func() { callbacks++ })
	assert.Equal(t, 10, keys)
	assert.Equal(t, 10, vals)
	assert.Equal(t, 0, d.Len())
	assert.True(t, callbacks > 0)
	require.NoError(t, d.Add("again", 1))
}

func TestCaseInsensitiveType(t *testing.T) {
	d := New(CaseInsensitiveType[int](nil), nil)
	require.NoError(t, d.Add("GET", 1))
	val, ok := d.FetchValue("get")
	assert.True(t, ok)
	assert.Equal(t, 1, val)
	assert.True(t, errors.Is(d.Add("Get", 2), ErrKeyExists))
}

func TestStats(t *testing.T) {
	d := MakeSimple[int]()
	assert.Contains(t, d.Stats().String(), "No stats available")
	for i := 0; i < 100; i++ {
		d.Put("k"+strconv.Itoa(i), i)
	}
	st := d.Stats()
	assert.Equal(t, uint64(d.ht[0].used), st.Main.Used)
	out := st.String()
	assert.Contains(t, out, "Hash table 0 stats (main hash table)")
	assert.Contains(t, out, "number of elements")
	if d.IsRehashing() {
		assert.NotNil(t, st.Rehashing)
		assert.Contains(t, out, "rehashing target")
	}
}
