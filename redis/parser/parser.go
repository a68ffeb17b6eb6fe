// Package parser decodes client requests from a query buffer.
// Requests are either RESP multi bulk arrays or inline commands separated by spaces.
package parser

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/hdt3213/redict/redis/protocol"
)

const (
	// MaxInlineSize bounds an inline request and the header lines of a multi bulk request
	MaxInlineSize = 64 * 1024
	// MaxBulkLen bounds a single argument
	MaxBulkLen = 512 * 1024 * 1024
	// MaxMultiBulkLen bounds the number of arguments
	MaxMultiBulkLen = 1024 * 1024

	initialArgsCap = 1024
)

// ErrIncomplete means the buffer does not hold a whole command yet
var ErrIncomplete = errors.New("incomplete command")

func protocolError(msg string) error {
	return &protocol.ProtocolErrReply{Msg: msg}
}

// ParseCommand decodes the first command of buf and returns its arguments and the number of
// bytes it occupies. An empty request returns nil args with a positive consumed count.
// It returns ErrIncomplete if more bytes are needed, or a *protocol.ProtocolErrReply if buf
// is malformed, in which case the connection should be closed after replying.
// The returned arguments do not alias buf.
func ParseCommand(buf []byte) (args [][]byte, consumed int, err error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] == '*' {
		return parseMultiBulk(buf)
	}
	return parseInline(buf)
}

func parseInline(buf []byte) ([][]byte, int, error) {
	newline := bytes.IndexByte(buf, '\n')
	if newline < 0 {
		if len(buf) > MaxInlineSize {
			return nil, 0, protocolError("too big inline request")
		}
		return nil, 0, ErrIncomplete
	}
	line := bytes.TrimSuffix(buf[:newline], []byte{'\r'})
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, newline + 1, nil
	}
	args := make([][]byte, len(fields))
	for i, f := range fields {
		args[i] = append([]byte(nil), f...)
	}
	return args, newline + 1, nil
}

// readLine returns the integer following prefix on the CRLF terminated line at pos,
// and the position after the line
func readLine(buf []byte, pos int) (int64, int, error) {
	end := bytes.Index(buf[pos:], []byte{'\r', '\n'})
	if end < 0 {
		if len(buf)-pos > MaxInlineSize {
			return 0, 0, protocolError("too big bulk count string")
		}
		return 0, 0, ErrIncomplete
	}
	n, err := strconv.ParseInt(string(buf[pos+1:pos+end]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return n, pos + end + 2, nil
}

func parseMultiBulk(buf []byte) ([][]byte, int, error) {
	count, pos, err := readLine(buf, 0)
	if err == ErrIncomplete {
		return nil, 0, err
	}
	if err != nil || count > MaxMultiBulkLen {
		return nil, 0, protocolError("invalid multibulk length")
	}
	if count <= 0 {
		return nil, pos, nil
	}
	// count is untrusted until the arguments arrive
	args := make([][]byte, 0, min(count, initialArgsCap))
	for i := int64(0); i < count; i++ {
		if pos >= len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[pos] != '$' {
			return nil, 0, protocolError("expected '$', got '" + string(buf[pos]) + "'")
		}
		var bulkLen int64
		bulkLen, pos, err = readLine(buf, pos)
		if err == ErrIncomplete {
			return nil, 0, err
		}
		if err != nil || bulkLen < 0 || bulkLen > MaxBulkLen {
			return nil, 0, protocolError("invalid bulk length")
		}
		end := pos + int(bulkLen)
		if end+2 > len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, protocolError("invalid bulk terminator")
		}
		args = append(args, append([]byte(nil), buf[pos:end]...))
		pos = end + 2
	}
	return args, pos, nil
}
