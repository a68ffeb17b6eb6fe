package sds

import (
	"bytes"
	"errors"
	"testing"
)

func checkSentinel(t *testing.T, s *Sds) {
	t.Helper()
	if s.Cap() != s.Len()+s.Avail() {
		t.Errorf("cap %d != len %d + avail %d", s.Cap(), s.Len(), s.Avail())
	}
	if s.buf[:s.Len()+1][s.Len()] != 0 {
		t.Errorf("missing sentinel after %q", s.String())
	}
}

func TestCreate(t *testing.T) {
	s := New("foo")
	if s.Len() != 3 || s.String() != "foo" {
		t.Errorf("expect foo, actual %q", s.String())
	}
	checkSentinel(t, s)

	s = NewLen([]byte("foobar"), 2)
	if s.String() != "fo" {
		t.Errorf("expect fo, actual %q", s.String())
	}
	s = NewLen(nil, 4)
	if !bytes.Equal(s.Bytes(), []byte{0, 0, 0, 0}) {
		t.Errorf("expect zero filled buffer, actual %v", s.Bytes())
	}
	s = Empty()
	if s.Len() != 0 {
		t.Error("expect empty buffer")
	}
	checkSentinel(t, s)

	d := FromInt64(-1234).Dup()
	if d.String() != "-1234" {
		t.Errorf("expect -1234, actual %q", d.String())
	}
}

func TestCat(t *testing.T) {
	s := New("fo")
	if err := s.Cat("bar"); err != nil {
		t.Fatal(err)
	}
	if s.String() != "fobar" {
		t.Errorf("expect fobar, actual %q", s.String())
	}
	checkSentinel(t, s)
	if err := s.CatLen([]byte{0, 'x'}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 7 || s.Bytes()[5] != 0 {
		t.Errorf("expect binary safe append, actual %v", s.Bytes())
	}
	if err := s.CatSds(New("!")); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 8 {
		t.Errorf("expect 8, actual %d", s.Len())
	}
	checkSentinel(t, s)

	s = New("--")
	_ = s.CatFmt("%d:%s", 7, "x")
	if s.String() != "--7:x" {
		t.Errorf("expect --7:x, actual %q", s.String())
	}
}

func TestGrowthPolicy(t *testing.T) {
	s := Empty()
	for i := 0; i < 1000; i++ {
		_ = s.Cat("a")
	}
	if s.Avail() < 0 || s.Cap() < 1000 {
		t.Errorf("bad capacity %d", s.Cap())
	}
	s = New("abc")
	_ = s.MakeRoomFor(10)
	if s.Cap() != 26 {
		t.Errorf("expect doubled capacity 26, actual %d", s.Cap())
	}
	if s.Len() != 3 {
		t.Errorf("MakeRoomFor should not change length")
	}
	s.RemoveFreeSpace()
	if s.Avail() != 0 {
		t.Errorf("expect no free space, actual %d", s.Avail())
	}
	checkSentinel(t, s)

	err := s.MakeRoomFor(MaxSize)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expect ErrTooLarge, actual %v", err)
	}
	if s.String() != "abc" {
		t.Error("failed grow must leave buffer untouched")
	}
}

func TestTailIncrLen(t *testing.T) {
	s := New("ab")
	_ = s.MakeRoomFor(4)
	n := copy(s.Tail(), "cdef")
	s.IncrLen(n)
	if s.String() != "abcdef" {
		t.Errorf("expect abcdef, actual %q", s.String())
	}
	s.IncrLen(-2)
	if s.String() != "abcd" {
		t.Errorf("expect abcd, actual %q", s.String())
	}
	checkSentinel(t, s)
}

func TestCpyGrowZero(t *testing.T) {
	s := New("hello world")
	_ = s.Cpy("a")
	if s.String() != "a" {
		t.Errorf("expect a, actual %q", s.String())
	}
	_ = s.Cpy("xyzxxxxxxxxxxyyyyyyyyyykkkkkkkkkk")
	if s.String() != "xyzxxxxxxxxxxyyyyyyyyyykkkkkkkkkk" {
		t.Errorf("unexpected %q", s.String())
	}
	s = New("ab")
	_ = s.Cat("cd")
	s.Range(0, 0)
	_ = s.GrowZero(4)
	if !bytes.Equal(s.Bytes(), []byte{'a', 0, 0, 0}) {
		t.Errorf("expect zero filled tail, actual %v", s.Bytes())
	}
	_ = s.GrowZero(2)
	if s.Len() != 4 {
		t.Error("GrowZero must not shrink")
	}
	checkSentinel(t, s)
}

func TestTrim(t *testing.T) {
	s := New("AA...AA.a.aa.aHelloWorld     :::")
	s.Trim("Aa. :")
	if s.String() != "HelloWorld" {
		t.Errorf("expect HelloWorld, actual %q", s.String())
	}
	s = New("xxx")
	s.Trim("x")
	if s.Len() != 0 {
		t.Errorf("expect empty, actual %q", s.String())
	}
	checkSentinel(t, s)
}

// refRange is a straightforward slice based reference for Range
func refRange(str string, start, end int) string {
	n := len(str)
	if n == 0 {
		return ""
	}
	if start < 0 {
		start = max(n+start, 0)
	}
	if end < 0 {
		end = max(n+end, 0)
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return ""
	}
	return str[start : end+1]
}

func TestRange(t *testing.T) {
	cases := []struct {
		src        string
		start, end int
		expect     string
	}{
		{"Hello World", 1, -1, "ello World"},
		{"Hello World", 100, 200, ""},
		{"Hello World", 0, 0, "H"},
		{"Hello World", -5, -1, "World"},
		{"Hello World", -100, 4, "Hello"},
		{"Hello World", 6, 100, "World"},
		{"Hello World", 5, 2, ""},
		{"Hello World", -1, -100, ""},
		{"ciao", 1, 1, "i"},
		{"ciao", 1, -1, "iao"},
		{"ciao", 2, 1, ""},
		{"", 0, -1, ""},
	}
	for _, c := range cases {
		s := New(c.src)
		s.Range(c.start, c.end)
		if s.String() != c.expect {
			t.Errorf("range(%q, %d, %d): expect %q, actual %q", c.src, c.start, c.end, c.expect, s.String())
		}
		if ref := refRange(c.src, c.start, c.end); ref != s.String() {
			t.Errorf("range(%q, %d, %d): reference %q, actual %q", c.src, c.start, c.end, ref, s.String())
		}
		checkSentinel(t, s)
	}
}

func TestCmp(t *testing.T) {
	cases := []struct {
		a, b   string
		expect int
	}{
		{"foo", "foa", 1},
		{"bar", "bar", 0},
		{"aar", "bar", -1},
		{"ab", "abc", -1},
		{"abc", "ab", 1},
		{"", "", 0},
	}
	for _, c := range cases {
		if actual := Cmp(New(c.a), New(c.b)); actual != c.expect {
			t.Errorf("cmp(%q, %q): expect %d, actual %d", c.a, c.b, c.expect, actual)
		}
	}
}

func TestSplitLen(t *testing.T) {
	tokens, err := SplitLen([]byte("a,b,,c"), []byte(","))
	if err != nil {
		t.Fatal(err)
	}
	expect := []string{"a", "b", "", "c"}
	if len(tokens) != len(expect) {
		t.Fatalf("expect %d tokens, actual %d", len(expect), len(tokens))
	}
	for i, tok := range tokens {
		if tok.String() != expect[i] {
			t.Errorf("token %d: expect %q, actual %q", i, expect[i], tok.String())
		}
	}
	tokens, _ = SplitLen([]byte("foo--bar--"), []byte("--"))
	if len(tokens) != 3 || tokens[1].String() != "bar" || tokens[2].Len() != 0 {
		t.Errorf("unexpected multi byte split result")
	}
	tokens, _ = SplitLen(nil, []byte(","))
	if len(tokens) != 0 {
		t.Error("expect no tokens for empty input")
	}
	if _, err := SplitLen([]byte("abc"), nil); !errors.Is(err, ErrSeparator) {
		t.Errorf("expect ErrSeparator, actual %v", err)
	}
}

func TestCaseAndRepr(t *testing.T) {
	s := New("Hello")
	s.ToUpper()
	if s.String() != "HELLO" {
		t.Errorf("expect HELLO, actual %q", s.String())
	}
	s.ToLower()
	if s.String() != "hello" {
		t.Errorf("expect hello, actual %q", s.String())
	}
	s.MapChars("ho", "01")
	if s.String() != "0ell1" {
		t.Errorf("expect 0ell1, actual %q", s.String())
	}
	r := Empty()
	_ = r.CatRepr([]byte("a\"\n\x01"))
	if r.String() != `"a\"\n\x01"` {
		t.Errorf("unexpected repr %s", r.String())
	}
}
