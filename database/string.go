package database

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hdt3213/redict/datastruct/sds"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/redis/protocol"
	"github.com/shopspring/decimal"
)

const (
	errNotFloat      = "ERR value is not a valid float"
	errOverflow      = "ERR increment or decrement would overflow"
	errOffsetRange   = "ERR offset is out of range"
	errStringTooLong = "ERR string exceeds maximum allowed size (512MB)"
)

func (db *DB) getAsString(key string) (*sds.Sds, protocol.ErrorReply) {
	entity, ok := db.lookupRead(key)
	if !ok {
		return nil, nil
	}
	s, ok := entity.Data.(*sds.Sds)
	if !ok {
		return nil, &protocol.WrongTypeErrReply{}
	}
	return s, nil
}

// setString binds a fresh string to key and clears its ttl
func (db *DB) setString(key string, value []byte) {
	db.PutEntity(key, &database.DataEntity{Data: sds.FromBytes(value)})
	db.Persist(key)
}

// execGet returns string value bound to the given key
func execGet(db *DB, args [][]byte) redis.Reply {
	s, err := db.getAsString(string(args[0]))
	if err != nil {
		return err
	}
	if s == nil {
		return &protocol.NullBulkReply{}
	}
	return protocol.MakeBulkReply(s.Bytes())
}

const (
	upsertPolicy = iota // default
	insertPolicy        // set nx
	updatePolicy        // set xx
)

const unlimitedTTL int64 = 0

// parseTTLArg parses the argument following EX or PX into milliseconds
func parseTTLArg(arg []byte, unit int64, cmd string) (int64, redis.Reply) {
	ttlArg, err := strconv.ParseInt(string(arg), 10, 64)
	if err != nil {
		return 0, protocol.MakeErrReply(errNotInteger)
	}
	if ttlArg <= 0 || ttlArg > math.MaxInt64/unit {
		return 0, protocol.MakeErrReply("ERR invalid expire time in " + cmd)
	}
	return ttlArg * unit, nil
}

// execSet sets string value and time to live to the given key
func execSet(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	value := args[1]
	policy := upsertPolicy
	ttl := unlimitedTTL

	// parse options
	for i := 2; i < len(args); i++ {
		arg := strings.ToUpper(string(args[i]))
		switch arg {
		case "NX":
			if policy == updatePolicy {
				return &protocol.SyntaxErrReply{}
			}
			policy = insertPolicy
		case "XX":
			if policy == insertPolicy {
				return &protocol.SyntaxErrReply{}
			}
			policy = updatePolicy
		case "EX", "PX":
			if ttl != unlimitedTTL || i+1 >= len(args) {
				return &protocol.SyntaxErrReply{}
			}
			unit := int64(1)
			if arg == "EX" {
				unit = 1000
			}
			var errReply redis.Reply
			ttl, errReply = parseTTLArg(args[i+1], unit, "set")
			if errReply != nil {
				return errReply
			}
			i++ // skip next arg
		default:
			return &protocol.SyntaxErrReply{}
		}
	}

	_, exists := db.GetEntity(key)
	if (policy == insertPolicy && exists) || (policy == updatePolicy && !exists) {
		return &protocol.NullBulkReply{}
	}
	db.setString(key, value)
	if ttl != unlimitedTTL {
		db.Expire(key, db.now().Add(time.Duration(ttl)*time.Millisecond))
	}
	return &protocol.OkReply{}
}

// execSetNX sets string if not exists
func execSetNX(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	if _, exists := db.GetEntity(key); exists {
		return protocol.MakeIntReply(0)
	}
	db.setString(key, args[1])
	return protocol.MakeIntReply(1)
}

func setExGeneric(db *DB, args [][]byte, unit int64, cmd string) redis.Reply {
	key := string(args[0])
	ttl, errReply := parseTTLArg(args[1], unit, cmd)
	if errReply != nil {
		return errReply
	}
	db.setString(key, args[2])
	db.Expire(key, db.now().Add(time.Duration(ttl)*time.Millisecond))
	return &protocol.OkReply{}
}

// execSetEX sets string and its ttl in seconds
func execSetEX(db *DB, args [][]byte) redis.Reply {
	return setExGeneric(db, args, 1000, "setex")
}

// execPSetEX sets string and its ttl in milliseconds
func execPSetEX(db *DB, args [][]byte) redis.Reply {
	return setExGeneric(db, args, 1, "psetex")
}

// execMSet sets multi key-value in database
func execMSet(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 0 {
		return protocol.MakeArgNumErrReply("mset")
	}
	for i := 0; i < len(args); i += 2 {
		db.setString(string(args[i]), args[i+1])
	}
	return &protocol.OkReply{}
}

// execMSetNX sets multi key-value in database, only if none of the given keys exist
func execMSetNX(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 0 {
		return protocol.MakeArgNumErrReply("msetnx")
	}
	for i := 0; i < len(args); i += 2 {
		if _, exists := db.GetEntity(string(args[i])); exists {
			return protocol.MakeIntReply(0)
		}
	}
	for i := 0; i < len(args); i += 2 {
		db.setString(string(args[i]), args[i+1])
	}
	return protocol.MakeIntReply(1)
}

// execMGet get multi key-value from database, missing keys and non strings are nil
func execMGet(db *DB, args [][]byte) redis.Reply {
	result := make([][]byte, len(args))
	for i, arg := range args {
		s, err := db.getAsString(string(arg))
		if err != nil || s == nil {
			continue
		}
		result[i] = s.Bytes()
	}
	return protocol.MakeMultiBulkReply(result)
}

// execGetSet sets value of a string-type key and returns its old value
func execGetSet(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	old, err := db.getAsString(key)
	if err != nil {
		return err
	}
	db.setString(key, args[1])
	if old == nil {
		return &protocol.NullBulkReply{}
	}
	return protocol.MakeBulkReply(old.Bytes())
}

// execGetDel Get the value of key and delete the key.
func execGetDel(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	old, err := db.getAsString(key)
	if err != nil {
		return err
	}
	if old == nil {
		return &protocol.NullBulkReply{}
	}
	db.Remove(key)
	return protocol.MakeBulkReply(old.Bytes())
}

// incrDecr adds delta to the integer stored at key, a missing key counts as 0
func incrDecr(db *DB, key string, delta int64) redis.Reply {
	s, errReply := db.getAsString(key)
	if errReply != nil {
		return errReply
	}
	var val int64
	if s != nil {
		var err error
		val, err = strconv.ParseInt(s.String(), 10, 64)
		if err != nil {
			return protocol.MakeErrReply(errNotInteger)
		}
	}
	if (delta < 0 && val < math.MinInt64-delta) || (delta > 0 && val > math.MaxInt64-delta) {
		return protocol.MakeErrReply(errOverflow)
	}
	val += delta
	if s != nil {
		// keep the ttl and reuse the buffer
		_ = s.Cpy(strconv.FormatInt(val, 10))
	} else {
		db.PutEntity(key, &database.DataEntity{Data: sds.FromInt64(val)})
	}
	return protocol.MakeIntReply(val)
}

// execIncr increments the integer value of a key by one
func execIncr(db *DB, args [][]byte) redis.Reply {
	return incrDecr(db, string(args[0]), 1)
}

// execIncrBy increments the integer value of a key by given value
func execIncrBy(db *DB, args [][]byte) redis.Reply {
	delta, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	return incrDecr(db, string(args[0]), delta)
}

// execDecr decrements the integer value of a key by one
func execDecr(db *DB, args [][]byte) redis.Reply {
	return incrDecr(db, string(args[0]), -1)
}

// execDecrBy decrements the integer value of a key by the given value
func execDecrBy(db *DB, args [][]byte) redis.Reply {
	delta, ok := parseInt(args[1])
	if !ok || delta == math.MinInt64 {
		return protocol.MakeErrReply(errNotInteger)
	}
	return incrDecr(db, string(args[0]), -delta)
}

// execIncrByFloat increments the float value of a key by given value
func execIncrByFloat(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	delta, err := decimal.NewFromString(string(args[1]))
	if err != nil {
		return protocol.MakeErrReply(errNotFloat)
	}
	s, errReply := db.getAsString(key)
	if errReply != nil {
		return errReply
	}
	val := decimal.Zero
	if s != nil {
		val, err = decimal.NewFromString(s.String())
		if err != nil {
			return protocol.MakeErrReply(errNotFloat)
		}
	}
	result := val.Add(delta).String()
	if s != nil {
		_ = s.Cpy(result)
	} else {
		db.PutEntity(key, &database.DataEntity{Data: sds.New(result)})
	}
	return protocol.MakeBulkReply([]byte(result))
}

// execAppend sets string value to the given key
func execAppend(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	s, errReply := db.getAsString(key)
	if errReply != nil {
		return errReply
	}
	if s == nil {
		s = sds.FromBytes(args[1])
		db.PutEntity(key, &database.DataEntity{Data: s})
		return protocol.MakeIntReply(int64(s.Len()))
	}
	if err := s.CatLen(args[1]); err != nil {
		return protocol.MakeErrReply(errStringTooLong)
	}
	return protocol.MakeIntReply(int64(s.Len()))
}

// execStrLen returns len of string value bound to the given key
func execStrLen(db *DB, args [][]byte) redis.Reply {
	s, err := db.getAsString(string(args[0]))
	if err != nil {
		return err
	}
	if s == nil {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(s.Len()))
}

// execSetRange overwrites part of the string stored at key, starting at the specified offset.
// The string is padded with zero bytes if offset is beyond its length.
func execSetRange(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	offset, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	if offset < 0 {
		return protocol.MakeErrReply(errOffsetRange)
	}
	value := args[2]
	if offset+int64(len(value)) > sds.MaxSize {
		return protocol.MakeErrReply(errStringTooLong)
	}
	s, errReply := db.getAsString(key)
	if errReply != nil {
		return errReply
	}
	if s == nil {
		if len(value) == 0 {
			return protocol.MakeIntReply(0)
		}
		s = sds.Empty()
		db.PutEntity(key, &database.DataEntity{Data: s})
	}
	if len(value) == 0 {
		return protocol.MakeIntReply(int64(s.Len()))
	}
	end := int(offset) + len(value)
	if err := s.GrowZero(end); err != nil {
		return protocol.MakeErrReply(errStringTooLong)
	}
	copy(s.Bytes()[offset:end], value)
	return protocol.MakeIntReply(int64(s.Len()))
}

// execGetRange returns the substring of the string value stored at key, both ends included
func execGetRange(db *DB, args [][]byte) redis.Reply {
	startIdx, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	endIdx, ok := parseInt(args[2])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	s, err := db.getAsString(string(args[0]))
	if err != nil {
		return err
	}
	if s == nil {
		return protocol.MakeBulkReply([]byte{})
	}
	beg, end := convertRange(startIdx, endIdx, int64(s.Len()))
	if beg < 0 {
		return protocol.MakeBulkReply([]byte{})
	}
	return protocol.MakeBulkReply(s.Bytes()[beg:end])
}

// convertRange converts an inclusive range with negative indexes counted from the tail into
// a half open range [beg, end) within [0, size). beg is -1 if the range is empty.
func convertRange(start int64, end int64, size int64) (int, int) {
	if start < 0 {
		start = size + start
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end = size + end
	}
	if end >= size {
		end = size - 1
	}
	if start >= size || end < 0 || start > end {
		return -1, -1
	}
	return int(start), int(end + 1)
}

func init() {
	registerCommand("Set", execSet, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
	registerCommand("SetNx", execSetNX, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("SetEX", execSetEX, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
	registerCommand("PSetEX", execPSetEX, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
	registerCommand("MSet", execMSet, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, -1, 2)
	registerCommand("MSetNX", execMSetNX, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, -1, 2)
	registerCommand("MGet", execMGet, -2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, -1, 1)
	registerCommand("Get", execGet, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("GetSet", execGetSet, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
	registerCommand("GetDel", execGetDel, 2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("Incr", execIncr, 2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("IncrBy", execIncrBy, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("IncrByFloat", execIncrByFloat, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("Decr", execDecr, 2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("DecrBy", execDecrBy, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("StrLen", execStrLen, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("Append", execAppend, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
	registerCommand("SetRange", execSetRange, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
	registerCommand("GetRange", execGetRange, 4, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly}, 1, 1, 1)
}
