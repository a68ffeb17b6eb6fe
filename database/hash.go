package database

import (
	"math"
	"strconv"
	"strings"

	"github.com/hdt3213/redict/datastruct/dict"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/redis/protocol"
	"github.com/shopspring/decimal"
)

// hashValue is the representation of a hash, it shares the dict config of its db
type hashValue = dict.Dict[string, []byte]

func (db *DB) getAsDict(key string) (*hashValue, protocol.ErrorReply) {
	entity, exists := db.lookupRead(key)
	if !exists {
		return nil, nil
	}
	hash, ok := entity.Data.(*hashValue)
	if !ok {
		return nil, &protocol.WrongTypeErrReply{}
	}
	return hash, nil
}

func (db *DB) getOrInitDict(key string) (hash *hashValue, inited bool, errReply protocol.ErrorReply) {
	hash, errReply = db.getAsDict(key)
	if errReply != nil {
		return nil, false, errReply
	}
	inited = false
	if hash == nil {
		hash = dict.New(dict.StringType[[]byte](db.cfg), db.cfg)
		db.PutEntity(key, &database.DataEntity{
			Data: hash,
		})
		inited = true
	}
	return hash, inited, nil
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

// execHSet sets fields in hash table and returns the number of new fields
func execHSet(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 1 {
		return protocol.MakeArgNumErrReply("hset")
	}
	key := string(args[0])
	hash, _, errReply := db.getOrInitDict(key)
	if errReply != nil {
		return errReply
	}
	added := 0
	for i := 1; i < len(args); i += 2 {
		added += hash.Put(string(args[i]), copyBytes(args[i+1]))
	}
	return protocol.MakeIntReply(int64(added))
}

// execHMSet sets multi fields in hash table
func execHMSet(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 1 {
		return protocol.MakeArgNumErrReply("hmset")
	}
	reply := execHSet(db, args)
	if protocol.IsErrorReply(reply) {
		return reply
	}
	return &protocol.OkReply{}
}

// execHSetNX sets field in hash table only if field not exists
func execHSetNX(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	field := string(args[1])
	hash, _, errReply := db.getOrInitDict(key)
	if errReply != nil {
		return errReply
	}
	result := hash.PutIfAbsent(field, copyBytes(args[2]))
	return protocol.MakeIntReply(int64(result))
}

// execHGet gets field value of hash table
func execHGet(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return &protocol.NullBulkReply{}
	}
	value, exists := hash.Get(string(args[1]))
	if !exists {
		return &protocol.NullBulkReply{}
	}
	return protocol.MakeBulkReply(value)
}

// execHMGet gets multi fields in hash table
func execHMGet(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	result := make([][]byte, len(args)-1)
	if hash == nil {
		return protocol.MakeMultiBulkReply(result)
	}
	for i, field := range args[1:] {
		value, exists := hash.Get(string(field))
		if exists {
			result[i] = value
		}
	}
	return protocol.MakeMultiBulkReply(result)
}

// execHExists checks if a hash field exists
func execHExists(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return protocol.MakeIntReply(0)
	}
	if _, exists := hash.Get(string(args[1])); exists {
		return protocol.MakeIntReply(1)
	}
	return protocol.MakeIntReply(0)
}

// execHDel deletes hash fields, the key is removed with its last field
func execHDel(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	hash, errReply := db.getAsDict(key)
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return protocol.MakeIntReply(0)
	}
	deleted := 0
	for _, field := range args[1:] {
		_, result := hash.Remove(string(field))
		deleted += result
	}
	if hash.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeIntReply(int64(deleted))
}

// execHLen gets number of fields in hash table
func execHLen(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(hash.Len()))
}

// execHStrlen Returns the string length of the value associated with field in the hash stored at key.
func execHStrlen(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return protocol.MakeIntReply(0)
	}
	value, exists := hash.Get(string(args[1]))
	if !exists {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(len(value)))
}

// execHKeys gets all field names in hash table
func execHKeys(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return &protocol.EmptyMultiBulkReply{}
	}
	fields := make([][]byte, 0, hash.Len())
	hash.ForEach(func(field string, _ []byte) bool {
		fields = append(fields, []byte(field))
		return true
	})
	return protocol.MakeMultiBulkReply(fields)
}

// execHVals gets all field value in hash table
func execHVals(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return &protocol.EmptyMultiBulkReply{}
	}
	values := make([][]byte, 0, hash.Len())
	hash.ForEach(func(_ string, value []byte) bool {
		values = append(values, value)
		return true
	})
	return protocol.MakeMultiBulkReply(values)
}

// execHGetAll gets all key-value entries in hash table
func execHGetAll(db *DB, args [][]byte) redis.Reply {
	hash, errReply := db.getAsDict(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		return &protocol.EmptyMultiBulkReply{}
	}
	result := make([][]byte, 0, hash.Len()*2)
	hash.ForEach(func(field string, value []byte) bool {
		result = append(result, []byte(field), value)
		return true
	})
	return protocol.MakeMultiBulkReply(result)
}

// execHIncrBy increments the integer value of a hash field by the given number
func execHIncrBy(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	field := string(args[1])
	delta, ok := parseInt(args[2])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	hash, _, errReply := db.getOrInitDict(key)
	if errReply != nil {
		return errReply
	}
	var val int64
	if raw, exists := hash.Get(field); exists {
		var err error
		val, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return protocol.MakeErrReply("ERR hash value is not an integer")
		}
	}
	if (delta < 0 && val < math.MinInt64-delta) || (delta > 0 && val > math.MaxInt64-delta) {
		return protocol.MakeErrReply(errOverflow)
	}
	val += delta
	hash.Put(field, []byte(strconv.FormatInt(val, 10)))
	return protocol.MakeIntReply(val)
}

// execHIncrByFloat increments the float value of a hash field by the given number
func execHIncrByFloat(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	field := string(args[1])
	delta, err := decimal.NewFromString(string(args[2]))
	if err != nil {
		return protocol.MakeErrReply(errNotFloat)
	}
	hash, _, errReply := db.getOrInitDict(key)
	if errReply != nil {
		return errReply
	}
	val := decimal.Zero
	if raw, exists := hash.Get(field); exists {
		val, err = decimal.NewFromString(string(raw))
		if err != nil {
			return protocol.MakeErrReply("ERR hash value is not a float")
		}
	}
	result := []byte(val.Add(delta).String())
	hash.Put(field, result)
	return protocol.MakeBulkReply(result)
}

// execHRandField return a random field(or field-value) from the hash value stored at key.
// A positive count returns distinct fields, a negative count may repeat fields.
// hRandFieldMaxCount bounds the absolute count accepted by HRANDFIELD
const hRandFieldMaxCount = 1 << 24

func execHRandField(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	count := 1
	withValues := false
	if len(args) > 3 {
		return protocol.MakeArgNumErrReply("hrandfield")
	}
	if len(args) >= 2 {
		var err error
		count, err = strconv.Atoi(string(args[1]))
		if err != nil {
			return protocol.MakeErrReply(errNotInteger)
		}
		if count < -hRandFieldMaxCount || count > hRandFieldMaxCount {
			return protocol.MakeErrReply("ERR value is out of range")
		}
	}
	if len(args) == 3 {
		if strings.ToLower(string(args[2])) != "withvalues" {
			return &protocol.SyntaxErrReply{}
		}
		withValues = true
	}
	hash, errReply := db.getAsDict(key)
	if errReply != nil {
		return errReply
	}
	if hash == nil {
		if len(args) == 1 {
			return &protocol.NullBulkReply{}
		}
		return &protocol.EmptyMultiBulkReply{}
	}
	if len(args) == 1 {
		return protocol.MakeBulkReply([]byte(hash.GetRandomKey().Key()))
	}

	var picked []*dict.Entry[string, []byte]
	switch {
	case count == 0:
		return &protocol.EmptyMultiBulkReply{}
	case count < 0:
		picked = make([]*dict.Entry[string, []byte], 0, -count)
		for i := 0; i < -count; i++ {
			picked = append(picked, hash.GetRandomKey())
		}
	case count >= hash.Len():
		picked = make([]*dict.Entry[string, []byte], 0, hash.Len())
		it := hash.Iterator()
		for he := it.Next(); he != nil; he = it.Next() {
			picked = append(picked, he)
		}
		it.Release()
	default:
		seen := make(map[string]struct{}, count)
		picked = make([]*dict.Entry[string, []byte], 0, count)
		for len(picked) < count {
			he := hash.GetRandomKey()
			if _, dup := seen[he.Key()]; dup {
				continue
			}
			seen[he.Key()] = struct{}{}
			picked = append(picked, he)
		}
	}

	result := make([][]byte, 0, len(picked)*2)
	for _, he := range picked {
		result = append(result, []byte(he.Key()))
		if withValues {
			result = append(result, he.Value())
		}
	}
	return protocol.MakeMultiBulkReply(result)
}

// execHScan incrementally iterates the fields of a hash
func execHScan(db *DB, args [][]byte) redis.Reply {
	cursor, ok := parseCursor(args[1])
	if !ok {
		return protocol.MakeErrReply(errInvalidCursor)
	}
	opts, errReply := parseScanOptions(args[2:], false)
	if errReply != nil {
		return errReply
	}
	hash, err := db.getAsDict(string(args[0]))
	if err != nil {
		return err
	}
	if hash == nil {
		return makeScanReply(0, [][]byte{})
	}
	next, entries := scanDict(hash, cursor, opts.count)
	items := make([][]byte, 0, len(entries)*2)
	for _, he := range entries {
		if opts.pattern != nil && !opts.pattern.IsMatch(he.Key()) {
			continue
		}
		items = append(items, []byte(he.Key()), he.Value())
	}
	return makeScanReply(next, items)
}

func init() {
	registerCommand("HSet", execHSet, -4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("HSetNX", execHSetNX, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("HGet", execHGet, 3, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("HExists", execHExists, 3, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("HDel", execHDel, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("HLen", execHLen, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("HStrlen", execHStrlen, 3, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("HMSet", execHMSet, -4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("HMGet", execHMGet, -3, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("HKeys", execHKeys, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly}, 1, 1, 1)
	registerCommand("HVals", execHVals, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly}, 1, 1, 1)
	registerCommand("HGetAll", execHGetAll, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagRandom}, 1, 1, 1)
	registerCommand("HIncrBy", execHIncrBy, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("HIncrByFloat", execHIncrByFloat, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("HRandField", execHRandField, -2, flagReadOnly).
		attachCommandExtra([]string{redisFlagRandom, redisFlagReadonly}, 1, 1, 1)
	registerCommand("HScan", execHScan, -3, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagRandom}, 1, 1, 1)
}
