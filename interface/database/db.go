package database

import (
	"github.com/hdt3213/redict/interface/redis"
)

// CmdLine is alias for [][]byte, represents a command line
type CmdLine = [][]byte

// DB is the interface for redis style storage engine
type DB interface {
	Exec(client redis.Connection, cmdLine [][]byte) redis.Reply
	AfterClientClose(c redis.Connection)
	Close()
}

// KeyEventCallback is called after a write command modified a key.
// It is invoked from the goroutine executing commands.
type KeyEventCallback func(dbIndex int, key string)

// DataEntity stores data bound to a key, including a string, list or hash
type DataEntity struct {
	Data interface{}
}

// Engine is a DB driven by a network front end, every method is called from one goroutine at a time
type Engine interface {
	DB
	// ServerCron runs the periodic maintenance, Hz times per second
	ServerCron()
	Hz() int
	ShutdownRequested() bool
	ClientConnected()
	ClientRejected()
	SetClientsProvider(clients func() []redis.Connection)
}
