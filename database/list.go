package database

import (
	"bytes"
	"strconv"
	"strings"

	List "github.com/hdt3213/redict/datastruct/list"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/redis/protocol"
)

// listValue is the representation of a list, elements are compared by content
type listValue = List.LinkedList[[]byte]

func newListValue() *listValue {
	list := List.Make[[]byte]()
	list.SetMatchMethod(bytes.Equal)
	return list
}

func (db *DB) getAsList(key string) (*listValue, protocol.ErrorReply) {
	entity, ok := db.lookupRead(key)
	if !ok {
		return nil, nil
	}
	list, ok := entity.Data.(*listValue)
	if !ok {
		return nil, &protocol.WrongTypeErrReply{}
	}
	return list, nil
}

func (db *DB) getOrInitList(key string) (list *listValue, isNew bool, errReply protocol.ErrorReply) {
	list, errReply = db.getAsList(key)
	if errReply != nil {
		return nil, false, errReply
	}
	isNew = false
	if list == nil {
		list = newListValue()
		db.PutEntity(key, &database.DataEntity{
			Data: list,
		})
		isNew = true
	}
	return list, isNew, nil
}

// removeIfEmpty drops the key of a list whose last element was removed
func (db *DB) removeIfEmpty(key string, list *listValue) {
	if list.Len() == 0 {
		db.Remove(key)
	}
}

// execLIndex gets element of list at given list
func execLIndex(db *DB, args [][]byte) redis.Reply {
	index, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	list, errReply := db.getAsList(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if list == nil {
		return &protocol.NullBulkReply{}
	}
	node := list.Index(int(index))
	if node == nil {
		return &protocol.NullBulkReply{}
	}
	return protocol.MakeBulkReply(node.Value())
}

// execLLen gets length of list
func execLLen(db *DB, args [][]byte) redis.Reply {
	list, errReply := db.getAsList(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if list == nil {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(list.Len()))
}

// popGeneric removes elements from the head or the tail.
// Without count a single bulk is returned, with count an array of at most count elements.
func popGeneric(db *DB, args [][]byte, fromHead bool, cmd string) redis.Reply {
	key := string(args[0])
	count := -1
	if len(args) > 2 {
		return protocol.MakeArgNumErrReply(cmd)
	}
	if len(args) == 2 {
		n, err := strconv.Atoi(string(args[1]))
		if err != nil || n < 0 {
			return protocol.MakeErrReply("ERR value is out of range, must be positive")
		}
		count = n
	}
	list, errReply := db.getAsList(key)
	if errReply != nil {
		return errReply
	}
	if list == nil {
		return &protocol.NullBulkReply{}
	}
	pop := list.PopTail
	if fromHead {
		pop = list.PopHead
	}
	if count < 0 {
		val, _ := pop()
		db.removeIfEmpty(key, list)
		return protocol.MakeBulkReply(val)
	}
	result := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		val, ok := pop()
		if !ok {
			break
		}
		result = append(result, val)
	}
	db.removeIfEmpty(key, list)
	return protocol.MakeMultiBulkReply(result)
}

// execLPop removes the first element of list, and return it
func execLPop(db *DB, args [][]byte) redis.Reply {
	return popGeneric(db, args, true, "lpop")
}

// execRPop removes last element of list then return it
func execRPop(db *DB, args [][]byte) redis.Reply {
	return popGeneric(db, args, false, "rpop")
}

// pushGeneric inserts values at the head or the tail, xx requires the list to exist
func pushGeneric(db *DB, args [][]byte, toHead bool, xx bool) redis.Reply {
	key := string(args[0])
	var list *listValue
	var errReply protocol.ErrorReply
	if xx {
		list, errReply = db.getAsList(key)
		if errReply != nil {
			return errReply
		}
		if list == nil {
			return protocol.MakeIntReply(0)
		}
	} else {
		list, _, errReply = db.getOrInitList(key)
		if errReply != nil {
			return errReply
		}
	}
	for _, value := range args[1:] {
		if toHead {
			list.AddNodeHead(copyBytes(value))
		} else {
			list.AddNodeTail(copyBytes(value))
		}
	}
	return protocol.MakeIntReply(int64(list.Len()))
}

// execLPush inserts element at head of list
func execLPush(db *DB, args [][]byte) redis.Reply {
	return pushGeneric(db, args, true, false)
}

// execLPushX inserts element at head of list, only if list exists
func execLPushX(db *DB, args [][]byte) redis.Reply {
	return pushGeneric(db, args, true, true)
}

// execRPush inserts element at last of list
func execRPush(db *DB, args [][]byte) redis.Reply {
	return pushGeneric(db, args, false, false)
}

// execRPushX inserts element at last of list only if list exists
func execRPushX(db *DB, args [][]byte) redis.Reply {
	return pushGeneric(db, args, false, true)
}

// execLRange gets elements of list in given range
func execLRange(db *DB, args [][]byte) redis.Reply {
	start64, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	stop64, ok := parseInt(args[2])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	list, errReply := db.getAsList(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if list == nil {
		return &protocol.EmptyMultiBulkReply{}
	}
	start, stop := convertRange(start64, stop64, int64(list.Len()))
	if start < 0 {
		return &protocol.EmptyMultiBulkReply{}
	}
	return protocol.MakeMultiBulkReply(list.Range(start, stop))
}

// execLRem removes element of list at specified index
func execLRem(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	count, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	value := args[2]
	list, errReply := db.getAsList(key)
	if errReply != nil {
		return errReply
	}
	if list == nil {
		return protocol.MakeIntReply(0)
	}
	expected := func(a []byte) bool {
		return bytes.Equal(a, value)
	}
	var removed int
	if count == 0 {
		removed = list.RemoveAllByVal(expected)
	} else if count > 0 {
		removed = list.RemoveByVal(expected, int(count))
	} else {
		removed = list.ReverseRemoveByVal(expected, int(-count))
	}
	db.removeIfEmpty(key, list)
	return protocol.MakeIntReply(int64(removed))
}

// execLSet puts element at specified index of list
func execLSet(db *DB, args [][]byte) redis.Reply {
	index, ok := parseInt(args[1])
	if !ok {
		return protocol.MakeErrReply(errNotInteger)
	}
	list, errReply := db.getAsList(string(args[0]))
	if errReply != nil {
		return errReply
	}
	if list == nil {
		return protocol.MakeErrReply(errNoSuchKey)
	}
	node := list.Index(int(index))
	if node == nil {
		return protocol.MakeErrReply("ERR index out of range")
	}
	node.SetValue(copyBytes(args[2]))
	return &protocol.OkReply{}
}

// execLInsert inserts element before or after the pivot.
// It returns the new length, -1 if pivot is missing and 0 if the key is missing.
func execLInsert(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	var after bool
	switch strings.ToUpper(string(args[1])) {
	case "BEFORE":
		after = false
	case "AFTER":
		after = true
	default:
		return &protocol.SyntaxErrReply{}
	}
	list, errReply := db.getAsList(key)
	if errReply != nil {
		return errReply
	}
	if list == nil {
		return protocol.MakeIntReply(0)
	}
	pivot := list.SearchKey(args[2])
	if pivot == nil {
		return protocol.MakeIntReply(-1)
	}
	list.InsertNode(pivot, copyBytes(args[3]), after)
	return protocol.MakeIntReply(int64(list.Len()))
}

// execRPopLPush pops last element of list-A then insert it to the head of list-B
func execRPopLPush(db *DB, args [][]byte) redis.Reply {
	sourceKey := string(args[0])
	destKey := string(args[1])

	sourceList, errReply := db.getAsList(sourceKey)
	if errReply != nil {
		return errReply
	}
	if sourceList == nil {
		return &protocol.NullBulkReply{}
	}
	// type of destination is checked before anything is popped
	if _, errReply = db.getAsList(destKey); errReply != nil {
		return errReply
	}
	val, _ := sourceList.PopTail()
	db.removeIfEmpty(sourceKey, sourceList)

	destList, _, errReply := db.getOrInitList(destKey)
	if errReply != nil {
		return errReply
	}
	destList.AddNodeHead(val)
	return protocol.MakeBulkReply(val)
}

func init() {
	registerCommand("LPush", execLPush, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("LPushX", execLPushX, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("RPush", execRPush, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("RPushX", execRPushX, -3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM, redisFlagFast}, 1, 1, 1)
	registerCommand("LPop", execLPop, -2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("RPop", execRPop, -2, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagFast}, 1, 1, 1)
	registerCommand("RPopLPush", execRPopLPush, 3, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 2, 1)
	registerCommand("LRem", execLRem, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite}, 1, 1, 1)
	registerCommand("LLen", execLLen, 2, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly, redisFlagFast}, 1, 1, 1)
	registerCommand("LIndex", execLIndex, 3, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly}, 1, 1, 1)
	registerCommand("LSet", execLSet, 4, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
	registerCommand("LRange", execLRange, 4, flagReadOnly).
		attachCommandExtra([]string{redisFlagReadonly}, 1, 1, 1)
	registerCommand("LInsert", execLInsert, 5, flagWrite).
		attachCommandExtra([]string{redisFlagWrite, redisFlagDenyOOM}, 1, 1, 1)
}
