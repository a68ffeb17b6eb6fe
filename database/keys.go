package database

import (
	"strconv"
	"strings"
	"time"

	"github.com/hdt3213/redict/datastruct/dict"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/lib/wildcard"
	"github.com/hdt3213/redict/redis/protocol"
)

const (
	errNotInteger    = "ERR value is not an integer or out of range"
	errNoSuchKey     = "ERR no such key"
	errInvalidCursor = "ERR invalid cursor"
)

// execDel removes a key from db
func execDel(db *DB, args [][]byte) redis.Reply {
	keys := make([]string, len(args))
	for i, v := range args {
		keys[i] = string(v)
	}
	deleted := db.Removes(keys...)
	return protocol.MakeIntReply(int64(deleted))
}

// execExists checks if given keys exist in db, a key given twice is counted twice
func execExists(db *DB, args [][]byte) redis.Reply {
	result := int64(0)
	for _, arg := range args {
		key := string(arg)
		_, exists := db.GetEntity(key)
		if exists {
			result++
		}
	}
	return protocol.MakeIntReply(result)
}

// execType returns the type of entity, including: string, list, hash
func execType(db *DB, args [][]byte) redis.Reply {
	return protocol.MakeStatusReply(db.typeOf(string(args[0])))
}

// execRename a key
func execRename(db *DB, args [][]byte) redis.Reply {
	src := string(args[0])
	dest := string(args[1])
	entity, ok := db.GetEntity(src)
	if !ok {
		return protocol.MakeErrReply(errNoSuchKey)
	}
	if src == dest {
		return &protocol.OkReply{}
	}
	expireAt, hasTTL := db.GetExpiration(src)
	db.Removes(src, dest)
	db.PutEntity(dest, entity)
	if hasTTL {
		db.expires.Put(dest, expireAt)
	}
	db.notifyModified(dest)
	return &protocol.OkReply{}
}

// execRenameNx a key, only if the new key does not exist
func execRenameNx(db *DB, args [][]byte) redis.Reply {
	src := string(args[0])
	dest := string(args[1])
	entity, ok := db.GetEntity(src)
	if !ok {
		return protocol.MakeErrReply(errNoSuchKey)
	}
	if _, exists := db.GetEntity(dest); exists {
		return protocol.MakeIntReply(0)
	}
	expireAt, hasTTL := db.GetExpiration(src)
	db.Remove(src)
	db.PutEntity(dest, entity)
	if hasTTL {
		db.expires.Put(dest, expireAt)
	}
	db.notifyModified(dest)
	return protocol.MakeIntReply(1)
}

// expireGeneric sets the absolute expire time of key in milliseconds.
// A time in the past deletes the key.
func expireGeneric(db *DB, key string, whenMs int64) redis.Reply {
	if _, exists := db.GetEntity(key); !exists {
		return protocol.MakeIntReply(0)
	}
	if whenMs <= db.nowMs() {
		db.Remove(key)
		return protocol.MakeIntReply(1)
	}
	db.expires.Put(key, whenMs)
	return protocol.MakeIntReply(1)
}

func parseInt(arg []byte) (int64, bool) {
	v, err := strconv.ParseInt(string(arg), 10, 64)
	return v, err == nil
}

// execExpire sets a key's time to live in seconds
func execExpire(db *DB, args [][]byte) redis.Reply {
	ttlArg, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	return expireGeneric(db, string(args[0]), db.nowMs()+ttlArg*1000)
}

// execExpireAt sets a key's expiration in unix timestamp
func execExpireAt(db *DB, args [][]byte) redis.Reply {
	raw, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	return expireGeneric(db, string(args[0]), raw*1000)
}

// execPExpire sets a key's time to live in milliseconds
func execPExpire(db *DB, args [][]byte) redis.Reply {
	ttlArg, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	return expireGeneric(db, string(args[0]), db.nowMs()+ttlArg)
}

// execPExpireAt sets a key's expiration in unix timestamp specified in milliseconds
func execPExpireAt(db *DB, args [][]byte) redis.Reply {
	raw, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	return expireGeneric(db, string(args[0]), raw)
}

// ttlGeneric returns the remaining time to live, -2 if key is missing and -1 if it has no ttl
func ttlGeneric(db *DB, key string, unit time.Duration) redis.Reply {
	if _, exists := db.GetEntity(key); !exists {
		return protocol.MakeIntReply(-2)
	}
	when, hasTTL := db.GetExpiration(key)
	if !hasTTL {
		return protocol.MakeIntReply(-1)
	}
	remain := when - db.nowMs()
	if remain < 0 {
		remain = 0
	}
	if unit == time.Second {
		return protocol.MakeIntReply((remain + 500) / 1000)
	}
	return protocol.MakeIntReply(remain)
}

// execTTL returns a key's time to live in seconds
func execTTL(db *DB, args [][]byte) redis.Reply {
	return ttlGeneric(db, string(args[0]), time.Second)
}

// execPTTL returns a key's time to live in milliseconds
func execPTTL(db *DB, args [][]byte) redis.Reply {
	return ttlGeneric(db, string(args[0]), time.Millisecond)
}

// execPersist removes expiration from a key
func execPersist(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	if _, exists := db.GetEntity(key); !exists {
		return protocol.MakeIntReply(0)
	}
	if db.Persist(key) {
		return protocol.MakeIntReply(1)
	}
	return protocol.MakeIntReply(0)
}

// execKeys returns all keys matching the given pattern
func execKeys(db *DB, args [][]byte) redis.Reply {
	pattern := wildcard.CompilePattern(string(args[0]))
	result := make([][]byte, 0)
	db.ForEach(func(key string, _ *database.DataEntity, _ int64) bool {
		if pattern.IsMatch(key) {
			result = append(result, []byte(key))
		}
		return true
	})
	return protocol.MakeMultiBulkReply(result)
}

// execRandomKey returns a random live key, expired keys met on the way are removed
func execRandomKey(db *DB, args [][]byte) redis.Reply {
	const maxTries = 100
	for tries := 0; db.data.Len() > 0 && tries < maxTries; tries++ {
		key := db.data.GetRandomKey().Key()
		if db.expireIfNeeded(key) {
			continue
		}
		return protocol.MakeBulkReply([]byte(key))
	}
	return &protocol.NullBulkReply{}
}

type scanOptions struct {
	pattern *wildcard.Pattern
	count   int
	typ     string
}

// parseScanOptions parses [MATCH pattern] [COUNT count] [TYPE type], TYPE only if allowType
func parseScanOptions(args [][]byte, allowType bool) (*scanOptions, redis.Reply) {
	opts := &scanOptions{count: 10}
	for i := 0; i < len(args); i++ {
		arg := strings.ToUpper(string(args[i]))
		if i+1 >= len(args) {
			return nil, &protocol.SyntaxErrReply{}
		}
		switch {
		case arg == "MATCH":
			opts.pattern = wildcard.CompilePattern(string(args[i+1]))
		case arg == "COUNT":
			count, err := strconv.Atoi(string(args[i+1]))
			if err != nil {
				return nil, protocol.MakeErrReply(errNotInteger)
			}
			if count < 1 {
				return nil, &protocol.SyntaxErrReply{}
			}
			opts.count = count
		case arg == "TYPE" && allowType:
			opts.typ = strings.ToLower(string(args[i+1]))
		default:
			return nil, &protocol.SyntaxErrReply{}
		}
		i++
	}
	return opts, nil
}

func parseCursor(arg []byte) (uint64, bool) {
	cursor, err := strconv.ParseUint(string(arg), 10, 64)
	return cursor, err == nil
}

// scanDict runs dict cursor iterations until count entries were collected or the
// iteration budget is spent. It returns the next cursor and the visited entries.
func scanDict[V any](d *dict.Dict[string, V], cursor uint64, count int) (uint64, []*dict.Entry[string, V]) {
	var entries []*dict.Entry[string, V]
	maxIterations := count * 10
	for {
		cursor = d.Scan(cursor, func(entry *dict.Entry[string, V]) {
			entries = append(entries, entry)
		})
		maxIterations--
		if cursor == 0 || maxIterations <= 0 || len(entries) >= count {
			break
		}
	}
	return cursor, entries
}

func makeScanReply(cursor uint64, items [][]byte) redis.Reply {
	return protocol.MakeMultiRawReply([]redis.Reply{
		protocol.MakeBulkReply([]byte(strconv.FormatUint(cursor, 10))),
		protocol.MakeMultiBulkReply(items),
	})
}

// execScan incrementally iterates the keyspace
func execScan(db *DB, args [][]byte) redis.Reply {
	cursor, ok := parseCursor(args[0])
	if !ok {
		return protocol.MakeErrReply(errInvalidCursor)
	}
	opts, errReply := parseScanOptions(args[1:], true)
	if errReply != nil {
		return errReply
	}
	next, entries := scanDict(db.data, cursor, opts.count)
	keys := make([][]byte, 0, len(entries))
	for _, he := range entries {
		key := he.Key()
		if opts.pattern != nil && !opts.pattern.IsMatch(key) {
			continue
		}
		if db.expireIfNeeded(key) {
			continue
		}
		if opts.typ != "" && db.typeOf(key) != opts.typ {
			continue
		}
		keys = append(keys, []byte(key))
	}
	return makeScanReply(next, keys)
}

func init() {
	registerCommand("Del", execDel, -2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite}, 1, -1, 1)
	registerCommand("Unlink", execDel, -2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, -1, 1)
	registerCommand("Expire", execExpire, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("ExpireAt", execExpireAt, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("PExpire", execPExpire, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("PExpireAt", execPExpireAt, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("TTL", execTTL, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagRandom, redisFlagFast}, 1, 1, 1)
	registerCommand("PTTL", execPTTL, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagRandom, redisFlagFast}, 1, 1, 1)
	registerCommand("Persist", execPersist, 2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("Exists", execExists, -2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, -1, 1)
	registerCommand("Type", execType, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("Rename", execRename, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite}, 1, 2, 1)
	registerCommand("RenameNx", execRenameNx, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 2, 1)
	registerCommand("Keys", execKeys, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly}, 0, 0, 0)
	registerCommand("Scan", execScan, -2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagRandom}, 0, 0, 0)
	registerCommand("RandomKey", execRandomKey, 1, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagRandom}, 0, 0, 0)
}
