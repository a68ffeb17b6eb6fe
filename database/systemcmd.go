package database

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hdt3213/redict/datastruct/sds"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/lib/logger"
	"github.com/hdt3213/redict/redis/protocol"
)

// Ping the server
func Ping(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	if len(args) == 0 {
		return &protocol.PongReply{}
	} else if len(args) == 1 {
		return protocol.MakeBulkReply(args[0])
	}
	return protocol.MakeArgNumErrReply("ping")
}

func execEcho(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	return protocol.MakeBulkReply(args[0])
}

func execTime(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	now := time.Now()
	return protocol.MakeMultiBulkReply([][]byte{
		[]byte(strconv.FormatInt(now.Unix(), 10)),
		[]byte(strconv.FormatInt(int64(now.Nanosecond()/1000), 10)),
	})
}

// Info returns the INFO report, a section name selects one section
func Info(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	section := "default"
	if len(args) == 1 {
		section = strings.ToLower(string(args[0]))
	} else if len(args) > 1 {
		return &protocol.SyntaxErrReply{}
	}
	return protocol.MakeBulkReply(server.genInfoString(section).Bytes())
}

func (server *Server) genInfoString(section string) *sds.Sds {
	all := section == "all" || section == "default" || section == "everything"
	info := sds.Empty()
	sections := 0
	add := func(name string, gen func(*sds.Sds)) {
		if !all && section != name {
			return
		}
		if sections > 0 {
			_ = info.Cat("\r\n")
		}
		gen(info)
		sections++
	}
	add("server", server.serverInfo)
	add("clients", server.clientsInfo)
	add("persistence", server.persistenceInfo)
	add("stats", server.statsInfo)
	add("keyspace", server.keyspaceInfo)
	return info
}

func (server *Server) serverInfo(info *sds.Sds) {
	uptime := time.Since(server.startTime)
	_ = info.CatFmt("# Server\r\n"+
		"redict_version:%s\r\n"+
		"os:%s %s\r\n"+
		"arch_bits:%d\r\n"+
		"multiplexing_api:%s\r\n"+
		"go_version:%s\r\n"+
		"process_id:%d\r\n"+
		"run_id:%s\r\n"+
		"tcp_port:%d\r\n"+
		"uptime_in_seconds:%d\r\n"+
		"uptime_in_days:%d\r\n"+
		"hz:%d\r\n"+
		"config_file:%s\r\n",
		redictVersion,
		runtime.GOOS, runtime.GOARCH,
		strconv.IntSize,
		server.props.Transport,
		runtime.Version(),
		os.Getpid(),
		server.runID,
		server.props.Port,
		int64(uptime.Seconds()),
		int64(uptime.Hours()/24),
		server.props.Hz,
		server.props.CfPath)
}

func (server *Server) clientsInfo(info *sds.Sds) {
	connected := 0
	if server.clients != nil {
		connected = len(server.clients())
	}
	_ = info.CatFmt("# Clients\r\n"+
		"connected_clients:%d\r\n"+
		"maxclients:%d\r\n",
		connected, server.props.MaxClients)
}

func (server *Server) persistenceInfo(info *sds.Sds) {
	status := "ok"
	if !server.lastBgsaveOK {
		status = "err"
	}
	inProgress := 0
	if server.bgsave != nil {
		inProgress = 1
	}
	_ = info.CatFmt("# Persistence\r\n"+
		"rdb_changes_since_last_save:%d\r\n"+
		"rdb_bgsave_in_progress:%d\r\n"+
		"rdb_last_save_time:%d\r\n"+
		"rdb_last_bgsave_status:%s\r\n",
		server.dirty, inProgress, server.lastSave.Unix(), status)
}

func (server *Server) statsInfo(info *sds.Sds) {
	var expired, hits, misses int64
	for _, db := range server.dbSet {
		expired += db.expiredKeys
		hits += db.hits
		misses += db.misses
	}
	_ = info.CatFmt("# Stats\r\n"+
		"total_connections_received:%d\r\n"+
		"total_commands_processed:%d\r\n"+
		"rejected_connections:%d\r\n"+
		"expired_keys:%d\r\n"+
		"keyspace_hits:%d\r\n"+
		"keyspace_misses:%d\r\n"+
		"cron_loops:%d\r\n",
		server.stat.numConnections, server.stat.numCommands, server.stat.rejectedConns,
		expired, hits, misses, server.cronLoops)
}

func (server *Server) keyspaceInfo(info *sds.Sds) {
	_ = info.Cat("# Keyspace\r\n")
	for i, db := range server.dbSet {
		keys := db.data.Len()
		if keys == 0 {
			continue
		}
		_ = info.CatFmt("db%d:keys=%d,expires=%d\r\n", i, keys, db.expires.Len())
	}
}

// execDebug supports DEBUG HTSTATS <dbid> and DEBUG HTSTATS-KEY <key>
func execDebug(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	sub := strings.ToLower(string(args[0]))
	switch {
	case sub == "htstats" && len(args) == 2:
		dbIndex, err := strconv.Atoi(string(args[1]))
		if err != nil {
			return protocol.MakeErrReply(errNotInteger)
		}
		db, errReply := server.selectDB(dbIndex)
		if errReply != nil {
			return errReply
		}
		stats := sds.Empty()
		_ = stats.CatFmt("[Dictionary HT]\n%s[Expires HT]\n%s",
			db.data.Stats().String(), db.expires.Stats().String())
		return protocol.MakeBulkReply(stats.Bytes())
	case sub == "htstats-key" && len(args) == 2:
		db := server.mustSelectDB(dbIndexOf(c))
		entity, ok := db.GetEntity(string(args[1]))
		if !ok {
			return protocol.MakeErrReply(errNoSuchKey)
		}
		hash, ok := entity.Data.(*hashValue)
		if !ok {
			return protocol.MakeErrReply("ERR The value stored at the specified key is not represented using an hash table")
		}
		return protocol.MakeBulkReply([]byte(hash.Stats().String()))
	}
	return protocol.MakeErrReply("ERR unknown subcommand or wrong number of arguments for '" + string(args[0]) + "'")
}

// execClient supports CLIENT LIST, CLIENT ID, CLIENT SETNAME and CLIENT GETNAME
func execClient(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	sub := strings.ToLower(string(args[0]))
	switch {
	case sub == "list" && len(args) == 1:
		list := sds.Empty()
		if server.clients != nil {
			for _, client := range server.clients() {
				_ = list.Cat(client.Info())
				_ = list.Cat("\n")
			}
		}
		return protocol.MakeBulkReply(list.Bytes())
	case sub == "id" && len(args) == 1:
		return protocol.MakeIntReply(c.ID())
	case sub == "setname" && len(args) == 2:
		name := string(args[1])
		for _, ch := range name {
			if ch < '!' || ch > '~' {
				return protocol.MakeErrReply("ERR Client names cannot contain spaces, newlines or special characters.")
			}
		}
		c.SetName(name)
		return &protocol.OkReply{}
	case sub == "getname" && len(args) == 1:
		if c.GetName() == "" {
			return &protocol.NullBulkReply{}
		}
		return protocol.MakeBulkReply([]byte(c.GetName()))
	}
	return protocol.MakeErrReply("ERR unknown subcommand or wrong number of arguments for '" + string(args[0]) + "'")
}

// execShutdown saves the dataset unless NOSAVE is given, then asks the transport to stop.
// Without option the dataset is saved only if it changed since the last save.
func execShutdown(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	save := server.dirty > 0 && server.props.RDBFilename != ""
	if len(args) > 1 {
		return &protocol.SyntaxErrReply{}
	}
	if len(args) == 1 {
		switch strings.ToLower(string(args[0])) {
		case "nosave":
			save = false
		case "save":
			save = true
		default:
			return &protocol.SyntaxErrReply{}
		}
	}
	if server.bgsave != nil {
		logger.Warn("there is a background save in progress, waiting for it before shutting down")
		server.waitBgsave()
	}
	if save {
		if err := server.saveRDB(); err != nil {
			logger.Error("error trying to save the DB, can't exit: " + err.Error())
			return protocol.MakeErrReply("ERR Errors trying to SHUTDOWN. Check logs.")
		}
	}
	logger.Info("user requested shutdown...")
	server.shutdownAsap = true
	if c != nil {
		c.CloseAfterReply()
	}
	return &protocol.NoReply{}
}

func init() {
	registerSysCommand("Ping", Ping, -1, flagReadOnly).
		attachCommandExtra([]string{redisFlagFast}, 0, 0, 0)
	registerSysCommand("Echo", execEcho, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagFast}, 0, 0, 0)
	registerSysCommand("Time", execTime, 1, flagReadOnly).
		attachCommandExtra([]string{redisFlagRandom, redisFlagFast}, 0, 0, 0)
	registerSysCommand("Info", Info, -1, flagReadOnly).
		attachCommandExtra([]string{redisFlagRandom}, 0, 0, 0)
	registerSysCommand("Debug", execDebug, -2, flagAdmin).
		attachCommandExtra([]string{redisFlagAdmin, redisFlagNoScript}, 0, 0, 0)
	registerSysCommand("Client", execClient, -2, flagAdmin).
		attachCommandExtra([]string{redisFlagAdmin, redisFlagNoScript}, 0, 0, 0)
	registerSysCommand("Shutdown", execShutdown, -1, flagAdmin).
		attachCommandExtra([]string{redisFlagAdmin, redisFlagNoScript}, 0, 0, 0)
}
