package connection

import "bytes"

// FakeConn implements redis.Connection for test
type FakeConn struct {
	*Connection
}

// NewFakeConn creates a connection without socket
func NewFakeConn() *FakeConn {
	return &FakeConn{
		Connection: NewConn(-1, "fake"),
	}
}

// Clean resets the buffer
func (c *FakeConn) Clean() {
	c.Drain()
}

// Bytes returns written data
func (c *FakeConn) Bytes() []byte {
	var buf bytes.Buffer
	for n := c.reply.First(); n != nil; n = n.Next() {
		buf.Write(n.Value())
	}
	return buf.Bytes()
}
