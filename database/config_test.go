package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hdt3213/redict/lib/utils"
	"github.com/hdt3213/redict/redis/connection"
	"github.com/hdt3213/redict/redis/protocol/asserts"
)

func TestConfigGet(t *testing.T) {
	server := makeTestServer(t.TempDir())
	c := connection.NewFakeConn()
	result := server.Exec(c, utils.ToCmdLine("config", "get", "hz"))
	asserts.AssertMultiBulkReply(t, result, []string{"hz", "10"})
	result = server.Exec(c, utils.ToCmdLine("config", "get", "MAXCLIENTS", "activerehashing"))
	asserts.AssertMultiBulkReply(t, result, []string{"maxclients", "1000", "activerehashing", "yes"})
	result = server.Exec(c, utils.ToCmdLine("config", "get", "db*"))
	asserts.AssertMultiBulkReply(t, result, []string{"databases", "16", "dbfilename", "dump.rdb"})
	result = server.Exec(c, utils.ToCmdLine("config", "get", "nothing"))
	asserts.AssertMultiBulkReplySize(t, result, 0)
	result = server.Exec(c, utils.ToCmdLine("config", "get"))
	asserts.AssertErrReply(t, result, "ERR wrong number of arguments for 'config|get' command")
}

func TestConfigSet(t *testing.T) {
	server := makeTestServer(t.TempDir())
	c := connection.NewFakeConn()
	result := server.Exec(c, utils.ToCmdLine("config", "set", "hz", "50", "activerehashing", "no"))
	asserts.AssertStatusReply(t, result, "OK")
	assert.Equal(t, 50, server.Hz())
	assert.False(t, server.props.ActiveRehashing)

	result = server.Exec(c, utils.ToCmdLine("config", "set", "hz", "0"))
	asserts.AssertErrReply(t, result, "ERR CONFIG SET failed (possibly related to argument 'hz') - argument must be a valid value")
	result = server.Exec(c, utils.ToCmdLine("config", "set", "port", "1"))
	asserts.AssertErrReply(t, result, "ERR CONFIG SET failed (possibly related to argument 'port') - can't set immutable config")
	result = server.Exec(c, utils.ToCmdLine("config", "set", "foo", "1"))
	asserts.AssertErrReply(t, result, "ERR Unknown option or number of arguments for CONFIG SET - 'foo'")
	result = server.Exec(c, utils.ToCmdLine("config", "set", "hz", "1", "hz", "2"))
	asserts.AssertErrReply(t, result, "ERR CONFIG SET failed (possibly related to argument 'hz') - duplicate parameter")
	result = server.Exec(c, utils.ToCmdLine("config", "set", "activerehashing", "maybe"))
	asserts.AssertErrReply(t, result, "ERR CONFIG SET failed (possibly related to argument 'activerehashing') - argument couldn't be parsed into a bool")
	// nothing applied on failure
	assert.Equal(t, 50, server.Hz())
}

func TestConfigResetStat(t *testing.T) {
	server := makeTestServer(t.TempDir())
	c := connection.NewFakeConn()
	server.Exec(c, utils.ToCmdLine("get", "a"))
	assert.Equal(t, int64(1), server.mustSelectDB(0).misses)
	asserts.AssertStatusReply(t, server.Exec(c, utils.ToCmdLine("config", "resetstat")), "OK")
	assert.Equal(t, int64(0), server.mustSelectDB(0).misses)
	assert.Equal(t, int64(0), server.stat.numCommands)
}
