package database

import (
	"strings"

	"github.com/hdt3213/redict/datastruct/dict"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/redis/protocol"
)

// cmdTable is looked up regardless of case, it is filled by init functions
var cmdTable = dict.New(dict.CaseInsensitiveType[*command](nil), nil)

// SysExecFunc executes commands which need the server or the client rather than one db
type SysExecFunc func(server *Server, c redis.Connection, args [][]byte) redis.Reply

type command struct {
	name     string
	executor ExecFunc
	// sysExecutor is set instead of executor for server level commands
	sysExecutor SysExecFunc
	// arity means allowed number of cmdArgs, arity < 0 means len(args) >= -arity.
	// for example: the arity of `get` is 2, `mget` is -2
	arity int
	flags int
	extra *commandExtra
}

type commandExtra struct {
	signs    []string
	firstKey int
	lastKey  int
	keyStep  int
}

const flagWrite = 0

const (
	flagReadOnly = 1 << iota
	// flagAdmin marks commands touching the whole server, e.g. flushall or shutdown
	flagAdmin
)

const (
	redisFlagWrite    = "write"
	redisFlagReadonly = "readonly"
	redisFlagDenyOOM  = "denyoom"
	redisFlagAdmin    = "admin"
	redisFlagRandom   = "random"
	redisFlagFast     = "fast"
	redisFlagNoScript = "noscript"
)

// registerCommand registers a command executed within the selected db
func registerCommand(name string, executor ExecFunc, arity int, flags int) *command {
	name = strings.ToLower(name)
	cmd := &command{
		name:     name,
		executor: executor,
		arity:    arity,
		flags:    flags,
	}
	cmdTable.Put(name, cmd)
	return cmd
}

// registerSysCommand registers a command executed by the server, such as select, flushall or save
func registerSysCommand(name string, executor SysExecFunc, arity int, flags int) *command {
	name = strings.ToLower(name)
	cmd := &command{
		name:        name,
		sysExecutor: executor,
		arity:       arity,
		flags:       flags,
	}
	cmdTable.Put(name, cmd)
	return cmd
}

func lookupCommand(name string) *command {
	cmd, _ := cmdTable.Get(name)
	return cmd
}

func isReadOnlyCommand(name string) bool {
	cmd := lookupCommand(name)
	if cmd == nil {
		return false
	}
	return cmd.flags&flagReadOnly > 0
}

func (cmd *command) toDescReply() redis.Reply {
	args := make([]redis.Reply, 0, 6)
	args = append(args,
		protocol.MakeBulkReply([]byte(cmd.name)),
		protocol.MakeIntReply(int64(cmd.arity)))
	if cmd.extra != nil {
		signs := make([][]byte, len(cmd.extra.signs))
		for i, v := range cmd.extra.signs {
			signs[i] = []byte(v)
		}
		args = append(args,
			protocol.MakeMultiBulkReply(signs),
			protocol.MakeIntReply(int64(cmd.extra.firstKey)),
			protocol.MakeIntReply(int64(cmd.extra.lastKey)),
			protocol.MakeIntReply(int64(cmd.extra.keyStep)),
		)
	}
	return protocol.MakeMultiRawReply(args)
}

func (cmd *command) attachCommandExtra(signs []string, firstKey int, lastKey int, keyStep int) {
	cmd.extra = &commandExtra{
		signs:    signs,
		firstKey: firstKey,
		lastKey:  lastKey,
		keyStep:  keyStep,
	}
}
