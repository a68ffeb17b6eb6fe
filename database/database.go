// Package database is a memory database with redis compatible interface.
// Every method must be called from the goroutine driving the event loop.
package database

import (
	"time"

	"github.com/hdt3213/redict/datastruct/dict"
	"github.com/hdt3213/redict/datastruct/sds"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/redis/protocol"
)

// DB stores data and execute user's commands
type DB struct {
	index int
	// key -> DataEntity
	data *dict.Dict[string, *database.DataEntity]
	// key -> expire time in unix milliseconds
	expires *dict.Dict[string, int64]
	// cfg is shared by the keyspace and by every hash value
	cfg *dict.Config

	// now returns the current time, replaced in tests
	now func() time.Time

	keyModified database.KeyEventCallback
	// expiredKeys counts keys removed because their ttl elapsed
	expiredKeys int64
	hits        int64
	misses      int64
}

// ExecFunc is interface for command executor
// args don't include cmd line
type ExecFunc func(db *DB, args [][]byte) redis.Reply

// CmdLine is alias for [][]byte, represents a command line
type CmdLine = [][]byte

// makeDB create DB instance, dictionaries are grouped by cfg
func makeDB(index int, cfg *dict.Config) *DB {
	return &DB{
		index:   index,
		data:    dict.New(dict.StringType[*database.DataEntity](cfg), cfg),
		expires: dict.New(dict.StringType[int64](cfg), cfg),
		cfg:     cfg,
		now:     time.Now,
	}
}

func validateArity(arity int, cmdArgs [][]byte) bool {
	argNum := len(cmdArgs)
	if arity >= 0 {
		return argNum == arity
	}
	return argNum >= -arity
}

// execCommand runs an already validated command against db
func (db *DB) execCommand(cmd *command, cmdLine [][]byte) redis.Reply {
	return cmd.executor(db, cmdLine[1:])
}

// Exec executes a db level command without going through a server,
// server level commands such as select are refused
func (db *DB) Exec(c redis.Connection, cmdLine [][]byte) redis.Reply {
	if len(cmdLine) == 0 {
		return protocol.MakeErrReply("ERR empty command")
	}
	cmdName := string(cmdLine[0])
	cmd := lookupCommand(cmdName)
	if cmd == nil || cmd.executor == nil {
		return protocol.MakeErrReply("ERR unknown command '" + cmdName + "'")
	}
	if !validateArity(cmd.arity, cmdLine) {
		return protocol.MakeArgNumErrReply(cmd.name)
	}
	return db.execCommand(cmd, cmdLine)
}

func (db *DB) nowMs() int64 {
	return db.now().UnixMilli()
}

/* ---- Data Access ----- */

// GetEntity returns DataEntity bind to given key, expired keys are removed first
func (db *DB) GetEntity(key string) (*database.DataEntity, bool) {
	if db.expireIfNeeded(key) {
		return nil, false
	}
	return db.data.Get(key)
}

// lookupRead is GetEntity with keyspace statistics
func (db *DB) lookupRead(key string) (*database.DataEntity, bool) {
	entity, ok := db.GetEntity(key)
	if ok {
		db.hits++
	} else {
		db.misses++
	}
	return entity, ok
}

// PutEntity a DataEntity into DB, the ttl of key is kept
func (db *DB) PutEntity(key string, entity *database.DataEntity) int {
	return db.data.Put(key, entity)
}

// PutIfExists edit an existing DataEntity
func (db *DB) PutIfExists(key string, entity *database.DataEntity) int {
	if db.expireIfNeeded(key) {
		return 0
	}
	return db.data.PutIfExists(key, entity)
}

// PutIfAbsent insert an DataEntity only if the key not exists
func (db *DB) PutIfAbsent(key string, entity *database.DataEntity) int {
	db.expireIfNeeded(key)
	return db.data.PutIfAbsent(key, entity)
}

// Remove the given key from db
func (db *DB) Remove(key string) {
	db.data.Remove(key)
	db.expires.Remove(key)
}

// Removes the given keys from db and returns the number of removed keys
func (db *DB) Removes(keys ...string) (deleted int) {
	for _, key := range keys {
		if _, exists := db.GetEntity(key); exists {
			db.Remove(key)
			deleted++
		}
	}
	return deleted
}

// Flush clean database
func (db *DB) Flush() {
	db.data.Clear(nil)
	db.expires.Clear(nil)
}

// Len returns the number of keys, expired keys not yet removed included
func (db *DB) Len() int {
	return db.data.Len()
}

/* ---- TTL Functions ---- */

// Expire sets ttlCmd of key
func (db *DB) Expire(key string, expireTime time.Time) {
	db.expires.Put(key, expireTime.UnixMilli())
}

// Persist cancel ttlCmd of key and returns whether the key had a ttl
func (db *DB) Persist(key string) bool {
	_, removed := db.expires.Remove(key)
	return removed > 0
}

// GetExpiration returns the expire time of key in unix milliseconds
func (db *DB) GetExpiration(key string) (int64, bool) {
	return db.expires.Get(key)
}

// IsExpired check whether a key is expired
func (db *DB) IsExpired(key string) bool {
	when, ok := db.expires.Get(key)
	if !ok {
		return false
	}
	return when <= db.nowMs()
}

// expireIfNeeded removes key if its ttl elapsed and reports whether it did
func (db *DB) expireIfNeeded(key string) bool {
	if !db.IsExpired(key) {
		return false
	}
	db.Remove(key)
	db.expiredKeys++
	db.notifyModified(key)
	return true
}

/* ---- Notifications ---- */

func (db *DB) notifyModified(key string) {
	if db.keyModified != nil {
		db.keyModified(db.index, key)
	}
}

// ForEach traverses every live key with a safe iterator.
// expiration is 0 for keys without ttl.
func (db *DB) ForEach(cb func(key string, data *database.DataEntity, expiration int64) bool) {
	now := db.nowMs()
	db.data.ForEach(func(key string, entity *database.DataEntity) bool {
		when, hasTTL := db.expires.Get(key)
		if hasTTL && when <= now {
			return true
		}
		return cb(key, entity, when)
	})
}

func (db *DB) typeOf(key string) string {
	entity, exists := db.GetEntity(key)
	if !exists {
		return "none"
	}
	switch entity.Data.(type) {
	case *sds.Sds:
		return "string"
	case *listValue:
		return "list"
	case *hashValue:
		return "hash"
	}
	return "none"
}
