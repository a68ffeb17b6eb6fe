package server

import (
	"errors"
	"strings"
	"time"

	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/lib/logger"
	"github.com/hdt3213/redict/redis/connection"
	"github.com/hdt3213/redict/redis/parser"
	"github.com/hdt3213/redict/redis/protocol"
)

// ProcessInputBuffer executes every whole command of the client query buffer and queues the
// replies. Parsing stops at the first incomplete command, the remaining bytes stay buffered.
// A malformed request is answered with a protocol error and the client is closed after reply.
func ProcessInputBuffer(db database.Engine, c *connection.Connection) {
	for c.QueryBuf.Len() > 0 && !c.ShouldClose() {
		args, consumed, err := parser.ParseCommand(c.QueryBuf.Bytes())
		if errors.Is(err, parser.ErrIncomplete) {
			return
		}
		if err != nil {
			logger.Infof("protocol error from client %s: %v", c.RemoteAddr(), err)
			var errReply *protocol.ProtocolErrReply
			if errors.As(err, &errReply) {
				_ = c.Write(errReply.ToBytes())
			}
			c.CloseAfterReply()
			c.QueryBuf.Clear()
			return
		}
		if consumed >= c.QueryBuf.Len() {
			c.QueryBuf.Clear()
		} else {
			c.QueryBuf.Range(consumed, -1)
		}
		if len(args) == 0 {
			continue
		}
		c.Touch(time.Now(), strings.ToLower(string(args[0])))
		result := db.Exec(c, args)
		if result == nil {
			result = &protocol.UnknownErrReply{}
		}
		_ = c.Write(result.ToBytes())
		if db.ShutdownRequested() {
			return
		}
	}
}
