package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdt3213/redict/config"
	"github.com/hdt3213/redict/database"
	"github.com/hdt3213/redict/lib/utils"
	"github.com/hdt3213/redict/redis/protocol"
	"github.com/hdt3213/redict/redis/protocol/asserts"
)

func testProps(t *testing.T) *config.ServerProperties {
	props := config.Default()
	props.Bind = "127.0.0.1"
	props.Port = 0
	props.Hz = 100
	props.Dir = t.TempDir()
	return props
}

func startServer(t *testing.T, props *config.ServerProperties) (*Server, <-chan struct{}) {
	s, err := New(database.NewServer(props), props)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		_ = s.Serve()
		close(done)
	}()
	t.Cleanup(func() {
		s.Interrupt()
		waitStopped(t, done)
	})
	return s, done
}

func waitStopped(t *testing.T, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, s *Server) *testClient {
	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(t *testing.T, raw string) {
	_, err := c.conn.Write([]byte(raw))
	require.NoError(t, err)
}

func (c *testClient) do(t *testing.T, args ...string) string {
	c.send(t, string(protocol.MakeMultiBulkReply(utils.ToCmdLine(args...)).ToBytes()))
	reply, err := c.read()
	require.NoError(t, err)
	return reply
}

// read returns status, error and integer lines with their prefix, bulk contents as is and
// arrays as their elements joined by spaces
func (c *testClient) read() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty line")
	}
	switch line[0] {
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", err
		}
		if n < 0 {
			return "(nil)", nil
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(c.reader, buf); err != nil {
			return "", err
		}
		return string(buf[:n]), nil
	case '*':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", err
		}
		items := make([]string, 0, n)
		for i := 0; i < n; i++ {
			item, err := c.read()
			if err != nil {
				return "", err
			}
			items = append(items, item)
		}
		return strings.Join(items, " "), nil
	}
	return line, nil
}

func (c *testClient) expectClosed(t *testing.T) {
	_, err := c.read()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection was not closed by server")
	}
}

func TestPingAndInline(t *testing.T) {
	s, _ := startServer(t, testProps(t))
	c := dial(t, s)
	c.send(t, "PING\r\n")
	reply, err := c.read()
	require.NoError(t, err)
	assert.Equal(t, "+PONG", reply)
	c.send(t, "\r\necho   hello\r\n")
	reply, err = c.read()
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, "-ERR unknown command 'nope'", c.do(t, "nope"))
}

func TestPipelineAndPartialCommands(t *testing.T) {
	s, _ := startServer(t, testProps(t))
	c := dial(t, s)
	c.send(t, "*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n*2\r\n$4\r\nINCR\r\n$1\r\na\r\n*2\r\n$3\r\nGET\r\n$1\r\na\r\n")
	for _, expected := range []string{"+OK", ":2", "2"} {
		reply, err := c.read()
		require.NoError(t, err)
		assert.Equal(t, expected, reply)
	}

	c.send(t, "*2\r\n$3\r\nGE")
	time.Sleep(50 * time.Millisecond)
	c.send(t, "T\r\n$1\r")
	time.Sleep(50 * time.Millisecond)
	c.send(t, "\na\r\n")
	reply, err := c.read()
	require.NoError(t, err)
	assert.Equal(t, "2", reply)
}

func TestProtocolErrorClosesClient(t *testing.T) {
	s, _ := startServer(t, testProps(t))
	c := dial(t, s)
	c.send(t, "*1\r\n$x\r\n")
	reply, err := c.read()
	require.NoError(t, err)
	assert.Equal(t, "-ERR Protocol error: invalid bulk length", reply)
	c.expectClosed(t)

	// other clients are unaffected
	assert.Equal(t, "+PONG", dial(t, s).do(t, "ping"))
}

func TestLargeReply(t *testing.T) {
	s, _ := startServer(t, testProps(t))
	c := dial(t, s)
	value := string(bytes.Repeat([]byte("0123456789"), 200*1024))
	assert.Equal(t, "+OK", c.do(t, "set", "big", value))
	for i := 0; i < 3; i++ {
		assert.Equal(t, value, c.do(t, "get", "big"))
	}
	assert.Equal(t, ":"+strconv.Itoa(len(value)), c.do(t, "strlen", "big"))
}

func TestMaxClients(t *testing.T) {
	props := testProps(t)
	props.MaxClients = 1
	s, _ := startServer(t, props)
	first := dial(t, s)
	assert.Equal(t, "+PONG", first.do(t, "ping"))

	second := dial(t, s)
	reply, err := second.read()
	require.NoError(t, err)
	assert.Equal(t, "-ERR max number of clients reached", reply)
	second.expectClosed(t)

	info := first.do(t, "info", "stats")
	assert.Contains(t, info, "rejected_connections:1")
	assert.Contains(t, info, "total_connections_received:1")
}

func TestIdleTimeout(t *testing.T) {
	props := testProps(t)
	props.Timeout = 1
	s, _ := startServer(t, props)
	c := dial(t, s)
	assert.Equal(t, "+PONG", c.do(t, "ping"))
	start := time.Now()
	c.expectClosed(t)
	assert.Greater(t, time.Since(start), 900*time.Millisecond)
}

func TestClientCommands(t *testing.T) {
	s, _ := startServer(t, testProps(t))
	first := dial(t, s)
	second := dial(t, s)
	assert.Equal(t, "+OK", first.do(t, "client", "setname", "first"))
	assert.Equal(t, "first", first.do(t, "client", "getname"))
	assert.Equal(t, "+OK", second.do(t, "select", "2"))

	list := second.do(t, "client", "list")
	lines := strings.Split(strings.TrimSpace(list), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, list, "name=first")
	assert.Contains(t, list, "db=2")
	assert.Contains(t, list, "cmd=client")
	assert.Contains(t, second.do(t, "info", "clients"), "connected_clients:2")
}

func TestShutdownCommand(t *testing.T) {
	props := testProps(t)
	s, done := startServer(t, props)
	c := dial(t, s)
	assert.Equal(t, "+OK", c.do(t, "set", "k", "v"))
	c.send(t, "*2\r\n$8\r\nshutdown\r\n$6\r\nnosave\r\n")
	c.expectClosed(t)
	waitStopped(t, done)
	_, err := os.Stat(filepath.Join(props.Dir, props.RDBFilename))
	assert.True(t, os.IsNotExist(err))
}

func TestInterruptSavesDataset(t *testing.T) {
	props := testProps(t)
	s, done := startServer(t, props)
	c := dial(t, s)
	assert.Equal(t, "+OK", c.do(t, "set", "k", "v"))
	assert.Equal(t, ":2", c.do(t, "rpush", "l", "a", "b"))
	s.Interrupt()
	waitStopped(t, done)
	c.expectClosed(t)

	reloaded := database.NewServer(props)
	asserts.AssertBulkReply(t, reloaded.Exec(nil, utils.ToCmdLine("get", "k")), "v")
	asserts.AssertIntReply(t, reloaded.Exec(nil, utils.ToCmdLine("llen", "l")), 2)
}

func TestListenErrors(t *testing.T) {
	props := testProps(t)
	props.Bind = "not-an-ip"
	_, err := New(database.NewServer(props), props)
	assert.Error(t, err)

	props = testProps(t)
	s, _ := startServer(t, props)
	_, port, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err)
	props2 := testProps(t)
	props2.Port, _ = strconv.Atoi(port)
	_, err = New(database.NewServer(props2), props2)
	assert.Error(t, err)
}
