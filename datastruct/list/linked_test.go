package list

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/hdt3213/redict/lib/utils"
)

func ToString(list *LinkedList[int]) string {
	arr := make([]string, list.size)
	list.ForEach(func(i int, v int) bool {
		arr[i] = strconv.Itoa(v)
		return true
	})
	return "[" + strings.Join(arr, ", ") + "]"
}

func reverseString(list *LinkedList[int]) string {
	var arr []string
	it := list.Iterator(StartTail)
	for n := it.Next(); n != nil; n = it.Next() {
		arr = append(arr, strconv.Itoa(n.Value()))
	}
	return "[" + strings.Join(arr, ", ") + "]"
}

func TestAdd(t *testing.T) {
	list := Make[int]()
	for i := 0; i < 10; i++ {
		list.Add(i)
	}
	list.ForEach(func(i int, v int) bool {
		if v != i {
			t.Error("add test fail: expected " + strconv.Itoa(i) + ", actual: " + strconv.Itoa(v))
		}
		return true
	})
}

func TestAddNodeHead(t *testing.T) {
	list := Make[int]()
	for i := 0; i < 5; i++ {
		list.AddNodeHead(i)
	}
	if s := ToString(list); s != "[4, 3, 2, 1, 0]" {
		t.Error("unexpected list " + s)
	}
	if s := reverseString(list); s != "[0, 1, 2, 3, 4]" {
		t.Error("unexpected reverse list " + s)
	}
	if list.First().Value() != 4 || list.Last().Value() != 0 {
		t.Error("wrong head or tail")
	}
}

func BenchmarkLinkedList_Add(b *testing.B) {
	list := Make[int]()
	for i := 0; i < b.N; i++ {
		list.Add(i)
	}
}

func TestLinkedList_Contains(t *testing.T) {
	list := Make(1, 2, 3, 4)
	if !list.Contains(func(a int) bool {
		return a == 1
	}) {
		t.Error("expect true actual false")
	}
	if list.Contains(func(a int) bool {
		return a == -1
	}) {
		t.Error("expect false actual true")
	}
}

func TestGet(t *testing.T) {
	list := Make[int]()
	for i := 0; i < 10; i++ {
		list.Add(i)
	}
	for i := 0; i < 10; i++ {
		if k := list.Get(i); i != k {
			t.Error("get test fail: expected " + strconv.Itoa(i) + ", actual: " + strconv.Itoa(k))
		}
	}
}

func TestIndex(t *testing.T) {
	list := Make(0, 1, 2, 3, 4)
	cases := map[int]int{0: 0, 4: 4, -1: 4, -5: 0, -2: 3}
	for index, expected := range cases {
		n := list.Index(index)
		if n == nil || n.Value() != expected {
			t.Errorf("index %d: expected %d", index, expected)
		}
	}
	for _, index := range []int{5, 100, -6, -100} {
		if list.Index(index) != nil {
			t.Errorf("index %d should be out of range", index)
		}
	}
	if Make[int]().Index(0) != nil || Make[int]().Index(-1) != nil {
		t.Error("index of empty list should be nil")
	}
}

func TestDelNode(t *testing.T) {
	var freed []int
	list := Make(0, 1, 2, 3, 4)
	list.SetFreeMethod(func(val int) {
		freed = append(freed, val)
	})
	list.DelNode(list.Index(2))
	list.DelNode(list.First())
	list.DelNode(list.Last())
	if s := ToString(list); s != "[1, 3]" {
		t.Error("unexpected list " + s)
	}
	if s := reverseString(list); s != "[3, 1]" {
		t.Error("unexpected reverse list " + s)
	}
	if len(freed) != 3 || freed[0] != 2 || freed[1] != 0 || freed[2] != 4 {
		t.Errorf("unexpected freed values %v", freed)
	}
	list.Release()
	if list.Len() != 0 || list.First() != nil || list.Last() != nil {
		t.Error("list should be empty after release")
	}
	if len(freed) != 5 {
		t.Errorf("release should free remaining values, freed %v", freed)
	}
}

func TestInsertNode(t *testing.T) {
	list := Make(1)
	head := list.First()
	list.InsertNode(head, 0, false)
	list.InsertNode(head, 3, true)
	list.InsertNode(head, 2, true)
	list.InsertNode(list.Last(), 4, true)
	if s := ToString(list); s != "[0, 1, 2, 3, 4]" {
		t.Error("unexpected list " + s)
	}
	if s := reverseString(list); s != "[4, 3, 2, 1, 0]" {
		t.Error("unexpected reverse list " + s)
	}
	if list.Len() != 5 {
		t.Errorf("expected len 5, actual %d", list.Len())
	}
}

func TestRotate(t *testing.T) {
	list := Make(0, 1, 2, 3)
	list.Rotate()
	if s := ToString(list); s != "[3, 0, 1, 2]" {
		t.Error("unexpected list " + s)
	}
	if s := reverseString(list); s != "[2, 1, 0, 3]" {
		t.Error("unexpected reverse list " + s)
	}
	for i := 0; i < 3; i++ {
		list.Rotate()
	}
	if s := ToString(list); s != "[0, 1, 2, 3]" {
		t.Error("expected full cycle, actual " + s)
	}
	single := Make(7)
	single.Rotate()
	if single.First() != single.Last() || single.First().Value() != 7 {
		t.Error("rotating a single node list should be a no-op")
	}
}

func TestDup(t *testing.T) {
	list := Make(1, 2, 3)
	cp, err := list.Dup()
	if err != nil {
		t.Fatal(err)
	}
	cp.Set(0, 100)
	if list.Get(0) != 1 || ToString(cp) != "[100, 2, 3]" {
		t.Error("copy should be independent")
	}

	var freed []int
	list.SetDupMethod(func(val int) (int, error) {
		if val == 3 {
			return 0, errors.New("cannot copy 3")
		}
		return val * 10, nil
	})
	list.SetFreeMethod(func(val int) {
		freed = append(freed, val)
	})
	cp, err = list.Dup()
	if cp != nil || !errors.Is(err, ErrDupFailed) {
		t.Errorf("expected dup failure, actual %v", err)
	}
	if len(freed) != 2 || freed[0] != 10 || freed[1] != 20 {
		t.Errorf("partial copy should be released, freed %v", freed)
	}
	if list.Len() != 3 {
		t.Error("source list should be untouched")
	}
}

func TestSearchKey(t *testing.T) {
	a, b, c := "a", "b", "b"
	list := Make(&a, &b)
	if n := list.SearchKey(&b); n == nil || n != list.Last() {
		t.Error("identity search failed")
	}
	if list.SearchKey(&c) != nil {
		t.Error("identity search should not match an equal value behind another pointer")
	}
	list.SetMatchMethod(func(val *string, key *string) bool {
		return *val == *key
	})
	if n := list.SearchKey(&c); n == nil || n.Value() != &b {
		t.Error("match method search failed")
	}
}

func TestPop(t *testing.T) {
	list := Make(0, 1, 2)
	if v, ok := list.PopHead(); !ok || v != 0 {
		t.Error("pop head failed")
	}
	if v, ok := list.PopTail(); !ok || v != 2 {
		t.Error("pop tail failed")
	}
	if v, ok := list.PopTail(); !ok || v != 1 {
		t.Error("pop tail failed")
	}
	if _, ok := list.PopHead(); ok {
		t.Error("pop on empty list should fail")
	}
	if list.First() != nil || list.Last() != nil {
		t.Error("list should be empty")
	}
}

func TestIteratorDeleteCurrent(t *testing.T) {
	list := Make(0, 1, 2, 3, 4, 5)
	it := list.Iterator(StartHead)
	for n := it.Next(); n != nil; n = it.Next() {
		if n.Value()%2 == 0 {
			list.DelNode(n)
		}
	}
	if s := ToString(list); s != "[1, 3, 5]" {
		t.Error("unexpected list " + s)
	}
}

func TestRemoveVal(t *testing.T) {
	list := Make[int]()
	for i := 0; i < 10; i++ {
		list.Add(i)
		list.Add(i)
	}
	for index := 0; index < list.Len(); index++ {
		list.RemoveAllByVal(func(a int) bool {
			return utils.Equals(a, index)
		})
		list.ForEach(func(i int, v int) bool {
			if v == index {
				t.Error("remove test fail: found  " + strconv.Itoa(index) + " at index: " + strconv.Itoa(i))
			}
			return true
		})
	}

	list = Make[int]()
	for i := 0; i < 10; i++ {
		list.Add(i)
		list.Add(i)
	}
	for i := 0; i < 10; i++ {
		list.RemoveByVal(func(a int) bool {
			return a == i
		}, 1)
	}
	list.ForEach(func(i int, v int) bool {
		if v != i {
			t.Error("test fail: expected " + strconv.Itoa(i) + ", actual: " + strconv.Itoa(v))
		}
		return true
	})
	for i := 0; i < 10; i++ {
		list.RemoveByVal(func(a int) bool {
			return a == i
		}, 1)
	}
	if list.Len() != 0 {
		t.Error("test fail: expected 0, actual: " + strconv.Itoa(list.Len()))
	}

	list = Make[int]()
	for i := 0; i < 10; i++ {
		list.Add(i)
		list.Add(i)
	}
	for i := 0; i < 10; i++ {
		list.ReverseRemoveByVal(func(a int) bool {
			return a == i
		}, 1)
	}
	list.ForEach(func(i int, v int) bool {
		if v != i {
			t.Error("test fail: expected " + strconv.Itoa(i) + ", actual: " + strconv.Itoa(v))
		}
		return true
	})
	for i := 0; i < 10; i++ {
		list.ReverseRemoveByVal(func(a int) bool {
			return a == i
		}, 1)
	}
	if list.Len() != 0 {
		t.Error("test fail: expected 0, actual: " + strconv.Itoa(list.Len()))
	}
}

func TestRange(t *testing.T) {
	list := Make[int]()
	size := 10
	for i := 0; i < size; i++ {
		list.Add(i)
	}
	for start := 0; start < size; start++ {
		for stop := start; stop < size; stop++ {
			slice := list.Range(start, stop)
			if len(slice) != stop-start {
				t.Error("expected " + strconv.Itoa(stop-start) + ", get: " + strconv.Itoa(len(slice)) +
					", range: [" + strconv.Itoa(start) + "," + strconv.Itoa(stop) + "]")
			}
			sliceIndex := 0
			for i := start; i < stop; i++ {
				if slice[sliceIndex] != i {
					t.Error("expected " + strconv.Itoa(i) + ", get: " + strconv.Itoa(slice[sliceIndex]) +
						", range: [" + strconv.Itoa(start) + "," + strconv.Itoa(stop) + "]")
				}
				sliceIndex++
			}
		}
	}
}
