package database

import (
	"strings"

	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/redis/protocol"
)

func execCommand(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	if len(args) == 0 {
		return getAllCommandReply()
	}
	subCommand := strings.ToLower(string(args[0]))
	if subCommand == "info" {
		return getCommands(args[1:])
	} else if subCommand == "count" {
		return protocol.MakeIntReply(int64(cmdTable.Len()))
	} else if subCommand == "getkeys" {
		if len(args) < 2 {
			return protocol.MakeErrReply("ERR wrong number of arguments for 'command|" + subCommand + "'")
		}
		return getKeys(args[1:])
	}
	return protocol.MakeErrReply("ERR Unknown subcommand '" + subCommand + "'")
}

func getKeys(args [][]byte) redis.Reply {
	cmdName := string(args[0])
	cmd := lookupCommand(cmdName)
	if cmd == nil {
		return protocol.MakeErrReply("ERR Invalid command specified")
	}
	if !validateArity(cmd.arity, args) {
		return protocol.MakeArgNumErrReply(cmdName)
	}
	keys := writtenKeys(cmd, args)
	if len(keys) == 0 {
		return protocol.MakeErrReply("ERR The command has no key arguments")
	}
	resp := make([][]byte, len(keys))
	for i, key := range keys {
		resp[i] = []byte(key)
	}
	return protocol.MakeMultiBulkReply(resp)
}

func getCommands(args [][]byte) redis.Reply {
	replies := make([]redis.Reply, len(args))
	for i, v := range args {
		cmd := lookupCommand(string(v))
		if cmd != nil {
			replies[i] = cmd.toDescReply()
		} else {
			replies[i] = protocol.MakeNullBulkReply()
		}
	}
	return protocol.MakeMultiRawReply(replies)
}

func getAllCommandReply() redis.Reply {
	replies := make([]redis.Reply, 0, cmdTable.Len())
	cmdTable.ForEach(func(name string, cmd *command) bool {
		replies = append(replies, cmd.toDescReply())
		return true
	})
	return protocol.MakeMultiRawReply(replies)
}

func init() {
	registerSysCommand("Command", execCommand, -1, flagReadOnly).
		attachCommandExtra([]string{redisFlagRandom}, 0, 0, 0)
}
