package database

import (
	"time"

	"github.com/hdt3213/redict/datastruct/dict"
	"github.com/hdt3213/redict/lib/logger"
)

const (
	// activeExpireLookupsPerLoop is the number of keys with ttl sampled per loop
	activeExpireLookupsPerLoop = 20
	// activeExpireCPUPercent bounds the share of one cron period spent expiring keys
	activeExpireCPUPercent = 25
	// hashTableMinFill is the fill percentage below which a table is shrunk
	hashTableMinFill = 10
	// dbsPerCall bounds the databases visited by one resize or rehash pass
	dbsPerCall = 16
)

// ServerCron runs the periodic maintenance of the keyspace: active expiration,
// table resizing, incremental rehashing and background save bookkeeping.
// It is called Hz times per second from the event loop.
func (server *Server) ServerCron() {
	server.cronLoops++
	server.checkBgsaveDone()
	server.updateDictResizePolicy()
	server.activeExpireCycle()
	server.databasesCron()
}

// updateDictResizePolicy disables growth while a background save is writing a snapshot
func (server *Server) updateDictResizePolicy() {
	if server.bgsave == nil {
		server.dictCfg.EnableResize()
	} else {
		server.dictCfg.DisableResize()
	}
}

// activeExpireCycle removes expired keys by sampling the expires table of each db.
// A db is sampled again while more than a quarter of the sampled keys were expired,
// the whole cycle is bounded by activeExpireCPUPercent of the cron period.
func (server *Server) activeExpireCycle() {
	visits := len(server.dbSet)
	if visits > dbsPerCall {
		visits = dbsPerCall
	}
	if server.expireTimedUp {
		// the last cycle ran out of time, visit every db this time
		visits = len(server.dbSet)
	}
	server.expireTimedUp = false
	timeLimit := time.Second * activeExpireCPUPercent / time.Duration(server.props.Hz) / 100
	if timeLimit <= 0 {
		timeLimit = time.Microsecond
	}
	start := time.Now()
	for j := 0; j < visits; j++ {
		db := server.dbSet[server.expireDB%len(server.dbSet)]
		server.expireDB++
		iteration := 0
		for {
			num := db.expires.Len()
			if num == 0 {
				break
			}
			// tables this sparse make sampling too expensive
			if slots := db.expires.Slots(); slots > dict.InitialSize && num*100/slots < 1 {
				break
			}
			if num > activeExpireLookupsPerLoop {
				num = activeExpireLookupsPerLoop
			}
			expired := 0
			now := db.nowMs()
			for ; num > 0; num-- {
				he := db.expires.GetRandomKey()
				if he == nil {
					break
				}
				if he.Value() <= now {
					key := he.Key()
					db.Remove(key)
					db.expiredKeys++
					db.notifyModified(key)
					expired++
				}
			}
			iteration++
			if iteration%16 == 0 && time.Since(start) > timeLimit {
				server.expireTimedUp = true
				return
			}
			if expired <= activeExpireLookupsPerLoop/4 {
				break
			}
		}
	}
}

// databasesCron resizes and rehashes the keyspace tables.
// Nothing is done while a background save is running.
func (server *Server) databasesCron() {
	if server.bgsave != nil {
		return
	}
	n := len(server.dbSet)
	visits := n
	if visits > dbsPerCall {
		visits = dbsPerCall
	}
	for j := 0; j < visits; j++ {
		server.tryResizeHashTables(server.resizeDB % n)
		server.resizeDB++
	}
	if !server.props.ActiveRehashing {
		return
	}
	for j := 0; j < visits; j++ {
		workDone := server.incrementallyRehash(server.rehashDB % n)
		if workDone {
			// the millisecond of this tick is spent
			break
		}
		server.rehashDB++
	}
}

func htNeedsResize[K comparable, V any](d *dict.Dict[K, V]) bool {
	size := d.Slots()
	used := d.Len()
	return size > dict.InitialSize && used*100/size < hashTableMinFill
}

// tryResizeHashTables shrinks the tables of db whose fill dropped below hashTableMinFill
func (server *Server) tryResizeHashTables(dbIndex int) {
	db := server.dbSet[dbIndex]
	if htNeedsResize(db.data) {
		if err := db.data.Resize(); err == nil {
			logger.Debugf("db %d: shrinking keyspace to %d keys", dbIndex, db.data.Len())
		}
	}
	if htNeedsResize(db.expires) {
		_ = db.expires.Resize()
	}
}

// incrementallyRehash spends one millisecond rehashing the keyspace or the expires table of db.
// It returns whether some rehashing was performed.
func (server *Server) incrementallyRehash(dbIndex int) bool {
	db := server.dbSet[dbIndex]
	if db.data.IsRehashing() {
		db.data.RehashMilliseconds(1)
		if !db.data.IsRehashing() {
			logger.Debugf("db %d: keyspace rehashed to %d slots", dbIndex, db.data.Slots())
		}
		return true
	}
	if db.expires.IsRehashing() {
		db.expires.RehashMilliseconds(1)
		return true
	}
	return false
}
