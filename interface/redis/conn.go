package redis

// Connection represents a connection with redis client
type Connection interface {
	// Write queues a reply, it never blocks
	Write([]byte) error

	// ID is unique for the lifetime of the process
	ID() int64
	GetName() string
	SetName(string)
	// Info describes the connection in CLIENT LIST format
	Info() string

	// used for multi database
	GetDBIndex() int
	SelectDB(int)

	// CloseAfterReply asks the transport to close the connection once pending replies are sent
	CloseAfterReply()
}
