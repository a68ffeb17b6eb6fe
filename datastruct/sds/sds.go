// Package sds provides a binary safe dynamic byte buffer which keeps its length and free space
// explicit, the uniform representation of keys and string values in the keyspace.
package sds

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxPrealloc is the size below which growth doubles the buffer, above it grows linearly
	MaxPrealloc = 1024 * 1024
	// MaxSize is the largest length a buffer may reach, same as the largest bulk string
	MaxSize = 512 * 1024 * 1024
)

var (
	// ErrTooLarge is returned when a grow request exceeds MaxSize, the buffer is left untouched
	ErrTooLarge = errors.New("sds: buffer would exceed max size")
	// ErrSeparator is returned by SplitLen when the separator is empty
	ErrSeparator = errors.New("sds: separator must not be empty")
)

// Sds is a length and capacity prefixed byte string.
// buf[:len(buf)] is the logical content, one more byte is always reserved for a zero sentinel,
// so cap(buf) == Len() + Avail() + 1.
type Sds struct {
	buf []byte
}

// Empty creates a zero length buffer
func Empty() *Sds {
	return &Sds{buf: make([]byte, 0, 1)}
}

// NewLen creates a buffer of length n, copied from init, or zero filled if init is nil
func NewLen(init []byte, n int) *Sds {
	buf := make([]byte, n, n+1)
	if init != nil {
		copy(buf, init[:n])
	}
	return &Sds{buf: buf}
}

// New creates a buffer holding the given string
func New(init string) *Sds {
	buf := make([]byte, len(init), len(init)+1)
	copy(buf, init)
	return &Sds{buf: buf}
}

// FromBytes creates a buffer holding a copy of b
func FromBytes(b []byte) *Sds {
	return NewLen(b, len(b))
}

// FromInt64 creates a buffer holding the decimal representation of v
func FromInt64(v int64) *Sds {
	return New(strconv.FormatInt(v, 10))
}

// Dup returns a copy of s
func (s *Sds) Dup() *Sds {
	return NewLen(s.buf, len(s.buf))
}

// Free drops the storage, s must not be used afterwards
func (s *Sds) Free() {
	s.buf = nil
}

// Len returns the number of bytes in use
func (s *Sds) Len() int {
	return len(s.buf)
}

// Avail returns the number of bytes allocated but unused
func (s *Sds) Avail() int {
	return cap(s.buf) - len(s.buf) - 1
}

// Cap returns Len() + Avail()
func (s *Sds) Cap() int {
	return cap(s.buf) - 1
}

// Bytes returns the content, it is valid until the next mutation
func (s *Sds) Bytes() []byte {
	return s.buf
}

// String returns a copy of the content as string
func (s *Sds) String() string {
	return string(s.buf)
}

// setLen moves the logical end and rewrites the sentinel
func (s *Sds) setLen(n int) {
	s.buf = s.buf[:n]
	s.buf[:n+1][n] = 0
}

// Clear sets the length to zero but keeps the allocated space for reuse
func (s *Sds) Clear() {
	s.setLen(0)
}

// MakeRoomFor makes sure at least addLen bytes are free at the end of the buffer.
// The length is not changed.
func (s *Sds) MakeRoomFor(addLen int) error {
	if s.Avail() >= addLen {
		return nil
	}
	newLen := len(s.buf) + addLen
	if addLen < 0 || newLen > MaxSize {
		return ErrTooLarge
	}
	if newLen < MaxPrealloc {
		newLen *= 2
	} else {
		newLen += MaxPrealloc
	}
	buf := make([]byte, len(s.buf), newLen+1)
	copy(buf, s.buf)
	s.buf = buf
	s.setLen(len(s.buf))
	return nil
}

// RemoveFreeSpace reallocates the buffer so that there is no free space left
func (s *Sds) RemoveFreeSpace() {
	if s.Avail() == 0 {
		return
	}
	buf := make([]byte, len(s.buf), len(s.buf)+1)
	copy(buf, s.buf)
	s.buf = buf
}

// Tail returns the free space after the content, callers may write into it then call IncrLen
func (s *Sds) Tail() []byte {
	return s.buf[len(s.buf) : cap(s.buf)-1]
}

// IncrLen moves the logical end by incr bytes, negative values truncate
func (s *Sds) IncrLen(incr int) {
	n := len(s.buf) + incr
	if n < 0 || n > s.Cap() {
		panic("sds: IncrLen out of range")
	}
	s.setLen(n)
}

// CatLen appends b to s
func (s *Sds) CatLen(b []byte) error {
	if err := s.MakeRoomFor(len(b)); err != nil {
		return err
	}
	n := len(s.buf)
	s.buf = append(s.buf, b...)
	s.setLen(n + len(b))
	return nil
}

// Cat appends str to s
func (s *Sds) Cat(str string) error {
	if err := s.MakeRoomFor(len(str)); err != nil {
		return err
	}
	n := len(s.buf)
	s.buf = append(s.buf, str...)
	s.setLen(n + len(str))
	return nil
}

// CatSds appends t to s
func (s *Sds) CatSds(t *Sds) error {
	return s.CatLen(t.buf)
}

// CatFmt appends a printf style formatted string
func (s *Sds) CatFmt(format string, args ...interface{}) error {
	return s.Cat(fmt.Sprintf(format, args...))
}

// CatRepr appends a quoted representation of p, escaping non printable bytes
func (s *Sds) CatRepr(p []byte) error {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range p {
		switch c {
		case '\\', '"':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString("\\n")
		case '\r':
			sb.WriteString("\\r")
		case '\t':
			sb.WriteString("\\t")
		case '\a':
			sb.WriteString("\\a")
		case '\b':
			sb.WriteString("\\b")
		default:
			if c >= 0x20 && c < 0x7f {
				sb.WriteByte(c)
			} else {
				fmt.Fprintf(&sb, "\\x%02x", c)
			}
		}
	}
	sb.WriteByte('"')
	return s.Cat(sb.String())
}

// Cpy overwrites s with t
func (s *Sds) Cpy(t string) error {
	if s.Cap() < len(t) {
		if err := s.MakeRoomFor(len(t) - len(s.buf)); err != nil {
			return err
		}
	}
	s.buf = s.buf[:len(t)]
	copy(s.buf, t)
	s.setLen(len(t))
	return nil
}

// GrowZero grows s to length n, new bytes are set to zero. Does nothing if n <= Len()
func (s *Sds) GrowZero(n int) error {
	cur := len(s.buf)
	if n <= cur {
		return nil
	}
	if err := s.MakeRoomFor(n - cur); err != nil {
		return err
	}
	grown := s.buf[:n]
	for i := cur; i < n; i++ {
		grown[i] = 0
	}
	s.setLen(n)
	return nil
}

// Trim removes from both ends all bytes contained in cset
func (s *Sds) Trim(cset string) {
	start, end := 0, len(s.buf)
	for start < end && strings.IndexByte(cset, s.buf[start]) >= 0 {
		start++
	}
	for end > start && strings.IndexByte(cset, s.buf[end-1]) >= 0 {
		end--
	}
	n := end - start
	if start > 0 {
		copy(s.buf, s.buf[start:end])
	}
	s.setLen(n)
}

// Range keeps only the bytes in [start, end], both inclusive.
// Negative indexes count from the end, -1 is the last byte. Out of range indexes are clamped,
// an empty range leaves an empty buffer.
func (s *Sds) Range(start, end int) {
	length := len(s.buf)
	if length == 0 {
		return
	}
	if start < 0 {
		start += length
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end += length
		if end < 0 {
			end = 0
		}
	}
	newLen := 0
	if start <= end {
		newLen = end - start + 1
	}
	if newLen != 0 {
		if start >= length {
			newLen = 0
		} else if end >= length {
			end = length - 1
			newLen = 0
			if start <= end {
				newLen = end - start + 1
			}
		}
	}
	if newLen > 0 && start > 0 {
		copy(s.buf, s.buf[start:start+newLen])
	}
	s.setLen(newLen)
}

// ToLower converts every byte to lower case in place
func (s *Sds) ToLower() {
	for i, c := range s.buf {
		if c >= 'A' && c <= 'Z' {
			s.buf[i] = c + ('a' - 'A')
		}
	}
}

// ToUpper converts every byte to upper case in place
func (s *Sds) ToUpper() {
	for i, c := range s.buf {
		if c >= 'a' && c <= 'z' {
			s.buf[i] = c - ('a' - 'A')
		}
	}
}

// MapChars replaces every occurrence of from[i] with to[i]
func (s *Sds) MapChars(from, to string) {
	n := len(from)
	if len(to) < n {
		n = len(to)
	}
	for i, c := range s.buf {
		for j := 0; j < n; j++ {
			if c == from[j] {
				s.buf[i] = to[j]
				break
			}
		}
	}
}

// Cmp compares a and b byte-wise. If a is a prefix of b, the shorter one sorts lower.
func Cmp(a, b *Sds) int {
	l1, l2 := len(a.buf), len(b.buf)
	minLen := l1
	if l2 < minLen {
		minLen = l2
	}
	for i := 0; i < minLen; i++ {
		if a.buf[i] != b.buf[i] {
			if a.buf[i] < b.buf[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case l1 < l2:
		return -1
	case l1 > l2:
		return 1
	}
	return 0
}

// Equals reports whether a and b hold the same bytes
func Equals(a, b *Sds) bool {
	return Cmp(a, b) == 0
}

// SplitLen splits p by sep. An empty input returns no elements.
func SplitLen(p []byte, sep []byte) ([]*Sds, error) {
	if len(sep) < 1 {
		return nil, ErrSeparator
	}
	if len(p) == 0 {
		return nil, nil
	}
	var tokens []*Sds
	start := 0
	for j := 0; j+len(sep) <= len(p); j++ {
		if p[j] == sep[0] && (len(sep) == 1 || string(p[j:j+len(sep)]) == string(sep)) {
			tokens = append(tokens, NewLen(p[start:j], j-start))
			start = j + len(sep)
			j = start - 1
		}
	}
	tokens = append(tokens, NewLen(p[start:], len(p)-start))
	return tokens, nil
}
