package connection

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hdt3213/redict/datastruct/list"
	"github.com/hdt3213/redict/datastruct/sds"
)

// MaxWritePerEvent bounds the bytes written to one client per writable event so that a
// client with a huge backlog does not starve the others
const MaxWritePerEvent = 64 * 1024

var nextID int64

// Connection is the state of a client: its query buffer, pending replies and selected db.
// It is driven by a single goroutine.
type Connection struct {
	id   int64
	fd   int
	addr string
	name string

	// QueryBuf accumulates bytes read from the socket until whole commands can be parsed
	QueryBuf *sds.Sds
	// replies waiting to be written, sentLen bytes of the head were already sent
	reply        *list.LinkedList[[]byte]
	sentLen      int
	pendingBytes int

	createTime      time.Time
	lastInteraction time.Time
	lastCmd         string
	closeAfterReply bool

	// selected db
	selectedDB int

	// Node is the position of the connection in the server client list
	Node *list.Node[*Connection]
	// onReply is called when the first reply is queued on an idle connection
	onReply func(c *Connection)
}

// NewConn creates Connection instance for a socket
func NewConn(fd int, addr string) *Connection {
	now := time.Now()
	return &Connection{
		id:              atomic.AddInt64(&nextID, 1),
		fd:              fd,
		addr:            addr,
		QueryBuf:        sds.Empty(),
		reply:           list.Make[[]byte](),
		createTime:      now,
		lastInteraction: now,
	}
}

// ID returns the unique id of connection
func (c *Connection) ID() int64 {
	return c.id
}

// Fd returns the socket descriptor, -1 for connections without socket
func (c *Connection) Fd() int {
	return c.fd
}

// RemoteAddr returns the remote network address
func (c *Connection) RemoteAddr() string {
	return c.addr
}

// OnReply sets the callback invoked when the connection gets pending replies
func (c *Connection) OnReply(cb func(c *Connection)) {
	c.onReply = cb
}

// Write queues b to be sent to client
func (c *Connection) Write(b []byte) error {
	if len(b) == 0 || c.closeAfterReply {
		return nil
	}
	wasIdle := c.reply.Len() == 0
	c.reply.Add(append([]byte(nil), b...))
	c.pendingBytes += len(b)
	if wasIdle && c.onReply != nil {
		c.onReply(c)
	}
	return nil
}

// HasPendingReplies returns whether replies are waiting to be sent
func (c *Connection) HasPendingReplies() bool {
	return c.reply.Len() > 0
}

// PendingBytes returns the number of bytes waiting to be sent
func (c *Connection) PendingBytes() int {
	return c.pendingBytes - c.sentLen
}

// WriteTo sends pending replies through write until everything is sent, write fails or
// MaxWritePerEvent bytes were written. It returns the number of bytes written.
// write follows the semantics of write(2): a short write stops the flush.
func (c *Connection) WriteTo(write func(b []byte) (int, error)) (int, error) {
	total := 0
	for c.reply.Len() > 0 && total < MaxWritePerEvent {
		head := c.reply.First()
		chunk := head.Value()[c.sentLen:]
		n, err := write(chunk)
		if n > 0 {
			total += n
			c.sentLen += n
		}
		if err != nil {
			return total, err
		}
		if c.sentLen < len(head.Value()) {
			break
		}
		c.pendingBytes -= len(head.Value())
		c.sentLen = 0
		c.reply.DelNode(head)
	}
	if total > 0 {
		c.lastInteraction = time.Now()
	}
	return total, nil
}

// Drain removes and returns every pending reply
func (c *Connection) Drain() [][]byte {
	chunks := make([][]byte, 0, c.reply.Len())
	for {
		chunk, ok := c.reply.PopHead()
		if !ok {
			break
		}
		if c.sentLen > 0 {
			chunk = chunk[c.sentLen:]
			c.sentLen = 0
		}
		chunks = append(chunks, chunk)
	}
	c.pendingBytes = 0
	return chunks
}

// CloseAfterReply marks the connection to be closed once pending replies are sent,
// later writes are discarded
func (c *Connection) CloseAfterReply() {
	c.closeAfterReply = true
}

// ShouldClose returns whether CloseAfterReply was called
func (c *Connection) ShouldClose() bool {
	return c.closeAfterReply
}

// Touch records activity of the client
func (c *Connection) Touch(now time.Time, cmd string) {
	c.lastInteraction = now
	if cmd != "" {
		c.lastCmd = cmd
	}
}

// IdleTime returns the duration since the last interaction
func (c *Connection) IdleTime(now time.Time) time.Duration {
	return now.Sub(c.lastInteraction)
}

// GetName returns the name set by CLIENT SETNAME
func (c *Connection) GetName() string {
	return c.name
}

// SetName sets the connection name
func (c *Connection) SetName(name string) {
	c.name = name
}

// Info describes the connection in CLIENT LIST format
func (c *Connection) Info() string {
	now := time.Now()
	return fmt.Sprintf("id=%d addr=%s fd=%d name=%s age=%d idle=%d db=%d qbuf=%d qbuf-free=%d obl=%d oll=%d cmd=%s",
		c.id, c.addr, c.fd, c.name,
		int64(now.Sub(c.createTime).Seconds()), int64(c.IdleTime(now).Seconds()),
		c.selectedDB, c.QueryBuf.Len(), c.QueryBuf.Avail(), c.PendingBytes(), c.reply.Len(), c.lastCmd)
}

// GetDBIndex returns selected db
func (c *Connection) GetDBIndex() int {
	return c.selectedDB
}

// SelectDB selects a database
func (c *Connection) SelectDB(dbNum int) {
	c.selectedDB = dbNum
}
