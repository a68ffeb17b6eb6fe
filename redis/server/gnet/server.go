// Package gnet serves redict through the gnet event engine instead of the ae reactor.
// Command execution and the maintenance cron are serialized by one mutex.
package gnet

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/hdt3213/redict/config"
	"github.com/hdt3213/redict/datastruct/list"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/lib/logger"
	"github.com/hdt3213/redict/lib/sync/atomic"
	"github.com/hdt3213/redict/lib/utils"
	"github.com/hdt3213/redict/redis/connection"
	"github.com/hdt3213/redict/redis/protocol"
	"github.com/hdt3213/redict/redis/server"
)

const clientsCronMinIter = 5

var maxClientsErr = []byte("-ERR max number of clients reached\r\n")

// GnetServer implements gnet.EventHandler on top of a database.Engine
type GnetServer struct {
	gnet.BuiltinEventEngine
	eng   gnet.Engine
	props *config.ServerProperties
	db    database.Engine

	mu      sync.Mutex
	clients *list.LinkedList[*connection.Connection]
	conns   map[*connection.Connection]gnet.Conn

	interrupted atomic.Boolean
}

// NewGnetServer creates a GnetServer
func NewGnetServer(db database.Engine, props *config.ServerProperties) *GnetServer {
	s := &GnetServer{
		props:   props,
		db:      db,
		clients: list.Make[*connection.Connection](),
		conns:   make(map[*connection.Connection]gnet.Conn),
	}
	db.SetClientsProvider(s.clientList)
	return s
}

// Run serves addr until SHUTDOWN or Interrupt
func (s *GnetServer) Run(addr string) error {
	err := gnet.Run(s, "tcp://"+addr,
		gnet.WithMulticore(false),
		gnet.WithTicker(true),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithLogger(gnetLogger{}),
	)
	s.mu.Lock()
	s.db.Close()
	s.mu.Unlock()
	return err
}

// Interrupt asks the server to shut down, it may be called from any goroutine
func (s *GnetServer) Interrupt() {
	s.interrupted.Set(true)
}

func (s *GnetServer) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.eng = eng
	logger.Info("ready to accept connections, multiplexing api: gnet")
	return
}

func (s *GnetServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients.Len() >= s.props.MaxClients {
		s.db.ClientRejected()
		return maxClientsErr, gnet.Close
	}
	client := connection.NewConn(c.Fd(), c.RemoteAddr().String())
	client.Node = s.clients.AddNodeTail(client)
	s.conns[client] = c
	c.SetContext(client)
	s.db.ClientConnected()
	return
}

func (s *GnetServer) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	if err != nil {
		logger.Infof("error occurred on connection=%s, %v", c.RemoteAddr().String(), err)
	}
	client, ok := c.Context().(*connection.Connection)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if client.Node != nil {
		s.clients.DelNode(client.Node)
		client.Node = nil
		delete(s.conns, client)
		s.db.AfterClientClose(client)
	}
	return
}

func (s *GnetServer) OnTraffic(c gnet.Conn) (action gnet.Action) {
	client := c.Context().(*connection.Connection)
	buf, err := c.Next(-1)
	if err != nil {
		logger.Infof("read from %s failed: %v", client.RemoteAddr(), err)
		return gnet.Close
	}
	s.mu.Lock()
	if err := client.QueryBuf.CatLen(buf); err != nil {
		s.mu.Unlock()
		logger.Warnf("closing client %s: query buffer: %v", client.RemoteAddr(), err)
		return gnet.Close
	}
	server.ProcessInputBuffer(s.db, client)
	shutdown := s.db.ShutdownRequested()
	out := client.Drain()
	s.mu.Unlock()

	if len(out) > 0 {
		if _, err := c.Writev(out); err != nil {
			return gnet.Close
		}
	}
	if shutdown {
		return gnet.Shutdown
	}
	if client.ShouldClose() {
		return gnet.Close
	}
	return gnet.None
}

func (s *GnetServer) OnTick() (delay time.Duration, action gnet.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupted.Swap(false) {
		reply := s.db.Exec(nil, utils.ToCmdLine("shutdown"))
		if protocol.IsErrorReply(reply) {
			logger.Warn("errors trying to shut down the server, keep serving")
		}
	}
	s.db.ServerCron()
	s.clientsCron()
	if s.db.ShutdownRequested() {
		return 0, gnet.Shutdown
	}
	hz := s.db.Hz()
	if hz < 1 {
		hz = 1
	}
	return time.Second / time.Duration(hz), gnet.None
}

// clientList is called by commands, the mutex is already held
func (s *GnetServer) clientList() []redis.Connection {
	result := make([]redis.Connection, 0, s.clients.Len())
	for n := s.clients.First(); n != nil; n = n.Next() {
		result = append(result, n.Value())
	}
	return result
}

func (s *GnetServer) clientsCron() {
	if s.props.Timeout <= 0 {
		return
	}
	numClients := s.clients.Len()
	iterations := numClients / max(s.db.Hz(), 1)
	if iterations < clientsCronMinIter {
		iterations = min(numClients, clientsCronMinIter)
	}
	now := time.Now()
	timeout := time.Duration(s.props.Timeout) * time.Second
	for ; iterations > 0; iterations-- {
		s.clients.Rotate()
		client := s.clients.First().Value()
		if client.IdleTime(now) <= timeout {
			continue
		}
		if c, ok := s.conns[client]; ok {
			logger.Infof("closing idle client %s", client.RemoteAddr())
			// asynchronous, OnClose unlinks the client
			_ = c.CloseWithCallback(nil)
		}
	}
}

// ListenAndServeWithSignal serves addr until SHUTDOWN or a termination signal
func ListenAndServeWithSignal(db database.Engine, props *config.ServerProperties, addr string) error {
	s := NewGnetServer(db, props)
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				logger.Infof("received %s, scheduling shutdown", sig)
				s.Interrupt()
			case <-done:
				return
			}
		}
	}()
	err := s.Run(addr)
	signal.Stop(sigCh)
	close(done)
	return err
}
