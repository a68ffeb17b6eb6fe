package database

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/hdt3213/rdb/core"
	rdbenc "github.com/hdt3213/rdb/encoder"
	rdb "github.com/hdt3213/rdb/parser"
	"github.com/natefinch/atomic"

	"github.com/hdt3213/redict/datastruct/dict"
	"github.com/hdt3213/redict/datastruct/sds"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/lib/logger"
	"github.com/hdt3213/redict/redis/protocol"
)

// bgsaveJob is a snapshot being written by another goroutine.
// The dataset is encoded within the event loop, only the file IO runs in background.
type bgsaveJob struct {
	done  chan error
	start time.Time
	// dirty at the time the snapshot was taken
	dirty int64
}

// encodeRDB writes every db into w
func (server *Server) encodeRDB(w io.Writer) error {
	encoder := rdbenc.NewEncoder(w).EnableCompress()
	err := encoder.WriteHeader()
	if err != nil {
		return err
	}
	auxMap := map[string]string{
		"redis-ver":    "6.0.0",
		"redis-bits":   strconv.Itoa(strconv.IntSize),
		"aof-preamble": "0",
		"ctime":        strconv.FormatInt(time.Now().Unix(), 10),
	}
	for k, v := range auxMap {
		err := encoder.WriteAux(k, v)
		if err != nil {
			return err
		}
	}
	for i, db := range server.dbSet {
		keyCount, ttlCount := db.data.Len(), db.expires.Len()
		if keyCount == 0 {
			continue
		}
		err = encoder.WriteDBHeader(uint(i), uint64(keyCount), uint64(ttlCount))
		if err != nil {
			return err
		}
		var err2 error
		db.ForEach(func(key string, entity *database.DataEntity, expiration int64) bool {
			var opts []interface{}
			if expiration > 0 {
				opts = append(opts, rdbenc.WithTTL(uint64(expiration)))
			}
			switch obj := entity.Data.(type) {
			case *sds.Sds:
				err2 = encoder.WriteStringObject(key, obj.Bytes(), opts...)
			case *listValue:
				vals := make([][]byte, 0, obj.Len())
				for n := obj.First(); n != nil; n = n.Next() {
					vals = append(vals, n.Value())
				}
				err2 = encoder.WriteListObject(key, vals, opts...)
			case *hashValue:
				hash := make(map[string][]byte, obj.Len())
				obj.ForEach(func(field string, val []byte) bool {
					hash[field] = val
					return true
				})
				err2 = encoder.WriteHashMapObject(key, hash, opts...)
			}
			return err2 == nil
		})
		if err2 != nil {
			return err2
		}
	}
	return encoder.WriteEnd()
}

// saveRDB writes the snapshot synchronously, the file is replaced atomically
func (server *Server) saveRDB() error {
	buf := &bytes.Buffer{}
	if err := server.encodeRDB(buf); err != nil {
		return fmt.Errorf("encode rdb failed: %w", err)
	}
	if err := atomic.WriteFile(server.props.RDBPath(), buf); err != nil {
		return fmt.Errorf("write rdb failed: %w", err)
	}
	server.dirty = 0
	server.lastSave = time.Now()
	logger.Info("DB saved on disk")
	return nil
}

// startBgsave encodes the dataset then hands the buffer to a goroutine writing the file
func (server *Server) startBgsave() error {
	if server.bgsave != nil {
		return errors.New("background save already in progress")
	}
	buf := &bytes.Buffer{}
	if err := server.encodeRDB(buf); err != nil {
		return err
	}
	job := &bgsaveJob{
		done:  make(chan error, 1),
		start: time.Now(),
		dirty: server.dirty,
	}
	path := server.props.RDBPath()
	go func() {
		job.done <- atomic.WriteFile(path, buf)
	}()
	server.bgsave = job
	logger.Info("background saving started")
	return nil
}

// checkBgsaveDone collects the result of the background save without blocking
func (server *Server) checkBgsaveDone() {
	if server.bgsave == nil {
		return
	}
	select {
	case err := <-server.bgsave.done:
		server.finishBgsave(err)
	default:
	}
}

// waitBgsave blocks until the background save terminates
func (server *Server) waitBgsave() {
	if server.bgsave == nil {
		return
	}
	server.finishBgsave(<-server.bgsave.done)
}

func (server *Server) finishBgsave(err error) {
	job := server.bgsave
	server.bgsave = nil
	if err != nil {
		server.lastBgsaveOK = false
		logger.Error("background saving error: " + err.Error())
		return
	}
	server.dirty -= job.dirty
	if server.dirty < 0 {
		server.dirty = 0
	}
	server.lastSave = job.start
	server.lastBgsaveOK = true
	logger.Infof("background saving terminated with success in %s", time.Since(job.start))
}

// loadRdbFile loads the snapshot at startup, a missing file means an empty dataset
func (server *Server) loadRdbFile() error {
	rdbFile, err := os.Open(server.props.RDBPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open rdb file failed: %w", err)
	}
	defer func() {
		_ = rdbFile.Close()
	}()
	start := time.Now()
	if err := server.LoadRDB(rdb.NewDecoder(rdbFile)); err != nil {
		return fmt.Errorf("load rdb file failed: %w", err)
	}
	logger.Infof("DB loaded from disk: %s", time.Since(start))
	return nil
}

// LoadRDB imports every object decoded by dec, keys already expired are skipped
func (server *Server) LoadRDB(dec *core.Decoder) error {
	now := time.Now()
	return dec.Parse(func(o rdb.RedisObject) bool {
		if o.GetDBIndex() >= len(server.dbSet) {
			logger.Warnf("skip key %s of db %d: out of range", o.GetKey(), o.GetDBIndex())
			return true
		}
		if o.GetExpiration() != nil && o.GetExpiration().Before(now) {
			return true
		}
		db := server.mustSelectDB(o.GetDBIndex())
		var entity *database.DataEntity
		switch o.GetType() {
		case rdb.StringType:
			str := o.(*rdb.StringObject)
			entity = &database.DataEntity{
				Data: sds.FromBytes(str.Value),
			}
		case rdb.ListType:
			listObj := o.(*rdb.ListObject)
			list := newListValue()
			for _, v := range listObj.Values {
				list.AddNodeTail(v)
			}
			entity = &database.DataEntity{
				Data: list,
			}
		case rdb.HashType:
			hashObj := o.(*rdb.HashObject)
			hash := dict.New(dict.StringType[[]byte](server.dictCfg), server.dictCfg)
			for k, v := range hashObj.Hash {
				hash.Put(k, v)
			}
			entity = &database.DataEntity{
				Data: hash,
			}
		default:
			logger.Warnf("skip key %s: unsupported type %s", o.GetKey(), o.GetType())
		}
		if entity != nil {
			db.PutEntity(o.GetKey(), entity)
			if o.GetExpiration() != nil {
				db.Expire(o.GetKey(), *o.GetExpiration())
			}
		}
		return true
	})
}

func execSave(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	if server.bgsave != nil {
		return protocol.MakeErrReply("ERR Background save already in progress")
	}
	if err := server.saveRDB(); err != nil {
		logger.Error(err)
		return protocol.MakeErrReply("ERR " + err.Error())
	}
	return &protocol.OkReply{}
}

func execBgsave(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	if server.bgsave != nil {
		return protocol.MakeErrReply("ERR Background save already in progress")
	}
	if err := server.startBgsave(); err != nil {
		logger.Error(err)
		return protocol.MakeErrReply("ERR " + err.Error())
	}
	return protocol.MakeStatusReply("Background saving started")
}

func execLastSave(server *Server, c redis.Connection, args [][]byte) redis.Reply {
	return protocol.MakeIntReply(server.lastSave.Unix())
}

func init() {
	registerSysCommand("Save", execSave, 1, flagAdmin).
		attachCommandExtra([]string{redisFlagAdmin, redisFlagNoScript}, 0, 0, 0)
	registerSysCommand("BgSave", execBgsave, 1, flagAdmin).
		attachCommandExtra([]string{redisFlagAdmin, redisFlagNoScript}, 0, 0, 0)
	registerSysCommand("LastSave", execLastSave, 1, flagReadOnly).
		attachCommandExtra([]string{redisFlagRandom, redisFlagFast}, 0, 0, 0)
}
