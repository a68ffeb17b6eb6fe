package database

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/hdt3213/redict/config"
	"github.com/hdt3213/redict/datastruct/dict"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/lib/logger"
	"github.com/hdt3213/redict/lib/utils"
	"github.com/hdt3213/redict/redis/protocol"
)

var redictVersion = "1.0.0"

// exitOnViolation stops the process after a dict contract violation, the keyspace can't be trusted anymore
var exitOnViolation = func() {
	if l, ok := logger.DefaultLogger.(*logger.Logger); ok {
		l.Close()
	}
	os.Exit(1)
}

// Server is a standalone redis server holding multiple databases.
// It is not safe for concurrent use, the transport serializes every call.
type Server struct {
	dbSet []*DB
	// dictCfg groups every dict of the keyspace, resizing is paused through it while saving
	dictCfg *dict.Config
	props   *config.ServerProperties

	startTime time.Time
	// runID identifies this server process in INFO
	runID string
	// clients returns connected clients, set by the transport
	clients func() []redis.Connection

	stat serverStats

	// cursors of the maintenance cron
	cronLoops     int64
	resizeDB      int
	rehashDB      int
	expireDB      int
	expireTimedUp bool

	// dirty counts changes since the last successful save
	dirty        int64
	lastSave     time.Time
	lastBgsaveOK bool
	bgsave       *bgsaveJob

	shutdownAsap bool

	keyModified database.KeyEventCallback
}

type serverStats struct {
	numCommands    int64
	numConnections int64
	rejectedConns  int64
}

// NewStandaloneServer creates a standalone redis server with config.Properties
func NewStandaloneServer() *Server {
	return NewServer(config.Properties)
}

// NewServer creates a server with the given properties and loads the snapshot file if present
func NewServer(props *config.ServerProperties) *Server {
	server := newServer(props)
	if props.RDBFilename != "" {
		if err := server.loadRdbFile(); err != nil {
			logger.Error(err)
		}
	}
	return server
}

func newServer(props *config.ServerProperties) *Server {
	if props.Databases <= 0 {
		props.Databases = 16
	}
	if props.Hz <= 0 {
		props.Hz = 10
	}
	server := &Server{
		dictCfg:      dict.NewConfig(),
		props:        props,
		startTime:    time.Now(),
		runID:        utils.RandHexString(40),
		lastSave:     time.Now(),
		lastBgsaveOK: true,
	}
	server.dictCfg.OnViolation = func(msg string) {
		logger.Fatal("dict assertion failed: " + msg)
		exitOnViolation()
		panic(&dict.AssertionError{Msg: msg})
	}
	server.dbSet = make([]*DB, props.Databases)
	for i := range server.dbSet {
		server.dbSet[i] = makeDB(i, server.dictCfg)
	}
	return server
}

// Exec executes command from client.
// `cmdLine` contains command and its arguments, for example: "set key value"
func (server *Server) Exec(c redis.Connection, cmdLine [][]byte) (result redis.Reply) {
	defer func() {
		if err := recover(); err != nil {
			if violation, ok := err.(*dict.AssertionError); ok {
				panic(violation)
			}
			logger.Warn(fmt.Sprintf("error occurs: %v\n%s", err, string(debug.Stack())))
			result = &protocol.UnknownErrReply{}
		}
	}()
	if len(cmdLine) == 0 {
		return protocol.MakeErrReply("ERR empty command")
	}
	cmdName := string(cmdLine[0])
	cmd := lookupCommand(cmdName)
	if cmd == nil {
		return protocol.MakeErrReply("ERR unknown command '" + cmdName + "'")
	}
	if !validateArity(cmd.arity, cmdLine) {
		return protocol.MakeArgNumErrReply(cmd.name)
	}
	server.stat.numCommands++
	if cmd.sysExecutor != nil {
		return cmd.sysExecutor(server, c, cmdLine[1:])
	}
	db, errReply := server.selectDB(dbIndexOf(c))
	if errReply != nil {
		return errReply
	}
	result = db.execCommand(cmd, cmdLine)
	if cmd.flags&flagReadOnly == 0 && !protocol.IsErrorReply(result) {
		server.dirty++
		for _, key := range writtenKeys(cmd, cmdLine) {
			db.notifyModified(key)
		}
	}
	return result
}

// writtenKeys returns the keys of cmdLine according to the key positions of cmd
func writtenKeys(cmd *command, cmdLine [][]byte) []string {
	if cmd.extra == nil || cmd.extra.firstKey <= 0 {
		return nil
	}
	last := cmd.extra.lastKey
	if last < 0 {
		last += len(cmdLine)
	}
	step := cmd.extra.keyStep
	if step <= 0 {
		step = 1
	}
	var keys []string
	for i := cmd.extra.firstKey; i <= last && i < len(cmdLine); i += step {
		keys = append(keys, string(cmdLine[i]))
	}
	return keys
}

func dbIndexOf(c redis.Connection) int {
	if c == nil {
		return 0
	}
	return c.GetDBIndex()
}

// AfterClientClose does some clean after client close connection
func (server *Server) AfterClientClose(c redis.Connection) {
	logger.Debugf("client %d closed", c.ID())
}

// ClientConnected counts accepted connections for INFO
func (server *Server) ClientConnected() {
	server.stat.numConnections++
}

// ClientRejected counts connections refused because maxclients was reached
func (server *Server) ClientRejected() {
	server.stat.rejectedConns++
}

// SetClientsProvider sets the function listing connected clients
func (server *Server) SetClientsProvider(clients func() []redis.Connection) {
	server.clients = clients
}

// SetKeyModifiedCallback sets the callback invoked after a key was written or expired
func (server *Server) SetKeyModifiedCallback(cb database.KeyEventCallback) {
	server.keyModified = cb
	for _, db := range server.dbSet {
		db.keyModified = cb
	}
}

// ShutdownRequested reports whether SHUTDOWN was executed
func (server *Server) ShutdownRequested() bool {
	return server.shutdownAsap
}

// Close graceful shutdown database, a running background save is waited for
func (server *Server) Close() {
	if server.bgsave != nil {
		server.waitBgsave()
	}
}

func (server *Server) selectDB(dbIndex int) (*DB, *protocol.StandardErrReply) {
	if dbIndex >= len(server.dbSet) || dbIndex < 0 {
		return nil, protocol.MakeErrReply("ERR DB index is out of range")
	}
	return server.dbSet[dbIndex], nil
}

func (server *Server) mustSelectDB(dbIndex int) *DB {
	selectedDB, err := server.selectDB(dbIndex)
	if err != nil {
		panic(err)
	}
	return selectedDB
}

// DictConfig returns the config shared by every dict of the keyspace
func (server *Server) DictConfig() *dict.Config {
	return server.dictCfg
}

// Hz returns the frequency of ServerCron
func (server *Server) Hz() int {
	return server.props.Hz
}

func execSelect(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	dbIndex, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return protocol.MakeErrReply("ERR invalid DB index")
	}
	if dbIndex >= len(server.dbSet) || dbIndex < 0 {
		return protocol.MakeErrReply("ERR DB index is out of range")
	}
	c.SelectDB(dbIndex)
	return protocol.MakeOkReply()
}

func execFlushDB(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	db := server.mustSelectDB(dbIndexOf(c))
	server.dirty += int64(db.Len())
	db.Flush()
	return &protocol.OkReply{}
}

func execFlushAll(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	for _, db := range server.dbSet {
		server.dirty += int64(db.Len())
		db.Flush()
	}
	return &protocol.OkReply{}
}

func execDBSize(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	db := server.mustSelectDB(dbIndexOf(c))
	return protocol.MakeIntReply(int64(db.Len()))
}

func init() {
	registerSysCommand("Select", execSelect, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagFast}, 0, 0, 0)
	registerSysCommand("FlushDB", execFlushDB, -1, flagWrite).
		attachCommandExtra([]string{redisFlagWrite}, 0, 0, 0)
	registerSysCommand("FlushAll", execFlushAll, -1, flagWrite|flagAdmin).
		attachCommandExtra([]string{redisFlagWrite}, 0, 0, 0)
	registerSysCommand("DBSize", execDBSize, 1, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 0, 0, 0)
}
