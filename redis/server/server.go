// Package server is the network front end of redict, driven by a single-threaded ae event loop.
//
// Sockets are raw non-blocking descriptors. Requests are parsed from the client query buffer
// as soon as bytes arrive and executed inline, replies are flushed before the loop sleeps and
// the remainder is sent when the socket becomes writable.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hdt3213/redict/ae"
	"github.com/hdt3213/redict/config"
	"github.com/hdt3213/redict/datastruct/list"
	"github.com/hdt3213/redict/interface/database"
	"github.com/hdt3213/redict/interface/redis"
	"github.com/hdt3213/redict/lib/logger"
	"github.com/hdt3213/redict/lib/sync/atomic"
	"github.com/hdt3213/redict/lib/utils"
	"github.com/hdt3213/redict/redis/connection"
	"github.com/hdt3213/redict/redis/protocol"
)

const (
	// fdSetReserve leaves room for the listener, the snapshot file and logs
	fdSetReserve          = 128
	listenBacklog         = 511
	maxAcceptsPerCall     = 1000
	ioBufLen              = 16 * 1024
	clientsCronMinIter    = 5
	queryBufShrinkAvail   = 32 * 1024
	queryBufShrinkIdle    = 2 * time.Second
	maxHz                 = 500
	shutdownFlushAttempts = 3
)

var maxClientsErr = []byte("-ERR max number of clients reached\r\n")

// Server accepts clients and feeds their commands to a database.Engine
type Server struct {
	props    *config.ServerProperties
	db       database.Engine
	el       *ae.EventLoop
	listenFd int
	addr     string

	clients       *list.LinkedList[*connection.Connection]
	pendingWrites []*connection.Connection
	readBuf       []byte

	// interrupted is set by the signal goroutine and consumed by the cron
	interrupted atomic.Boolean
}

// New binds the listening socket, the event loop is not started until Serve
func New(db database.Engine, props *config.ServerProperties) (*Server, error) {
	fd, port, err := listenTCP(props.Bind, props.Port)
	if err != nil {
		return nil, err
	}
	el, err := ae.New(props.MaxClients + fdSetReserve)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("create event loop: %w", err)
	}
	s := &Server{
		props:    props,
		db:       db,
		el:       el,
		listenFd: fd,
		addr:     net.JoinHostPort(props.Bind, strconv.Itoa(port)),
		clients:  list.Make[*connection.Connection](),
		readBuf:  make([]byte, ioBufLen),
	}
	if err := el.CreateFileEvent(fd, ae.Readable, s.acceptTcpHandler, nil); err != nil {
		_ = unix.Close(fd)
		_ = el.Close()
		return nil, fmt.Errorf("watch listener: %w", err)
	}
	el.SetBeforeSleepProc(s.beforeSleep)
	el.CreateTimeEvent(1, s.serverCron, nil, nil)
	db.SetClientsProvider(s.clientList)
	return s, nil
}

// Addr returns the address the server is listening on
func (s *Server) Addr() string {
	return s.addr
}

// Interrupt asks the server to shut down, it may be called from any goroutine
func (s *Server) Interrupt() {
	s.interrupted.Set(true)
}

// Serve runs the event loop until SHUTDOWN or Interrupt, then releases every client
func (s *Server) Serve() error {
	logger.Infof("ready to accept connections on %s, multiplexing api: %s", s.addr, s.el.ApiName())
	s.el.Main()
	s.shutdown()
	return nil
}

// ListenAndServeWithSignal serves until SHUTDOWN or a termination signal
func ListenAndServeWithSignal(db database.Engine, props *config.ServerProperties) error {
	s, err := New(db, props)
	if err != nil {
		return err
	}
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
	err = s.Serve()
	signal.Stop(sigCh)
	close(done)
	return err
}

func listenTCP(bind string, port int) (int, int, error) {
	if bind == "" {
		bind = "0.0.0.0"
	}
	ip := net.ParseIP(bind)
	if ip == nil {
		return -1, 0, fmt.Errorf("invalid bind address %q", bind)
	}
	family := unix.AF_INET6
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		family = unix.AF_INET
		sa4 := &unix.SockaddrInet4{Port: port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: port}
		copy(sa6.Addr[:], ip.To16())
		sa = sa6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("create socket: %w", err)
	}
	unix.CloseOnExec(fd)
	fail := func(op string, err error) (int, int, error) {
		_ = unix.Close(fd)
		return -1, 0, fmt.Errorf("%s %s:%d: %w", op, bind, port, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	switch a := bound.(type) {
	case *unix.SockaddrInet4:
		port = a.Port
	case *unix.SockaddrInet6:
		port = a.Port
	}
	return fd, port, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	}
	return "?"
}

func isTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

func (s *Server) acceptTcpHandler(el *ae.EventLoop, fd int, clientData any, mask int) {
	for i := 0; i < maxAcceptsPerCall; i++ {
		nfd, sa, err := unix.Accept(fd)
		if err != nil {
			if !isTemporary(err) {
				logger.Warnf("accepting client connection: %v", err)
			}
			return
		}
		s.acceptCommonHandler(nfd, sockaddrString(sa))
	}
}

func (s *Server) acceptCommonHandler(fd int, addr string) {
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		logger.Warnf("set client %s nonblock: %v", addr, err)
		_ = unix.Close(fd)
		return
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	if s.clients.Len() >= s.props.MaxClients {
		// best effort, the socket buffer of a fresh connection is empty
		_, _ = unix.Write(fd, maxClientsErr)
		_ = unix.Close(fd)
		s.db.ClientRejected()
		return
	}
	if want := s.props.MaxClients + fdSetReserve; want > s.el.GetSetSize() {
		if err := s.el.ResizeSetSize(want); err != nil {
			logger.Warnf("resize event loop to %d: %v", want, err)
		}
	}
	c := connection.NewConn(fd, addr)
	if err := s.el.CreateFileEvent(fd, ae.Readable, s.readQueryFromClient, c); err != nil {
		logger.Warnf("register client %s: %v", addr, err)
		_ = unix.Close(fd)
		return
	}
	c.OnReply(s.queuePendingWrite)
	c.Node = s.clients.AddNodeTail(c)
	s.db.ClientConnected()
	logger.Debugf("accepted %s", addr)
}

func (s *Server) readQueryFromClient(el *ae.EventLoop, fd int, clientData any, mask int) {
	c := clientData.(*connection.Connection)
	n, err := unix.Read(fd, s.readBuf)
	if err != nil {
		if isTemporary(err) {
			return
		}
		logger.Debugf("reading from client %s: %v", c.RemoteAddr(), err)
		s.freeClient(c)
		return
	}
	if n == 0 {
		logger.Debugf("client %s closed connection", c.RemoteAddr())
		s.freeClient(c)
		return
	}
	if err := c.QueryBuf.CatLen(s.readBuf[:n]); err != nil {
		logger.Warnf("closing client %s: query buffer: %v", c.RemoteAddr(), err)
		s.freeClient(c)
		return
	}
	c.Touch(time.Now(), "")
	ProcessInputBuffer(s.db, c)
	if c.ShouldClose() && !c.HasPendingReplies() {
		s.freeClient(c)
	}
	if s.db.ShutdownRequested() {
		el.Stop()
	}
}

func (s *Server) queuePendingWrite(c *connection.Connection) {
	s.pendingWrites = append(s.pendingWrites, c)
}

func (s *Server) beforeSleep(el *ae.EventLoop) {
	s.handleClientsWithPendingWrites()
}

// handleClientsWithPendingWrites writes replies directly, a writable handler is installed
// only for clients whose output could not be sent at once
func (s *Server) handleClientsWithPendingWrites() {
	pending := s.pendingWrites
	s.pendingWrites = nil
	for _, c := range pending {
		if c.Node == nil {
			continue
		}
		if !s.writeToClient(c) || !c.HasPendingReplies() {
			continue
		}
		if s.el.GetFileEvents(c.Fd())&ae.Writable != 0 {
			continue
		}
		if err := s.el.CreateFileEvent(c.Fd(), ae.Writable, s.sendReplyToClient, c); err != nil {
			logger.Warnf("watch client %s writable: %v", c.RemoteAddr(), err)
			s.freeClient(c)
		}
	}
}

func (s *Server) sendReplyToClient(el *ae.EventLoop, fd int, clientData any, mask int) {
	s.writeToClient(clientData.(*connection.Connection))
}

// writeToClient returns false if the client was freed
func (s *Server) writeToClient(c *connection.Connection) bool {
	fd := c.Fd()
	_, err := c.WriteTo(func(b []byte) (int, error) {
		n, err := unix.Write(fd, b)
		if err != nil && isTemporary(err) {
			return 0, nil
		}
		return n, err
	})
	if err != nil {
		logger.Debugf("writing to client %s: %v", c.RemoteAddr(), err)
		s.freeClient(c)
		return false
	}
	if c.HasPendingReplies() {
		return true
	}
	if s.el.GetFileEvents(fd)&ae.Writable != 0 {
		s.el.DeleteFileEvent(fd, ae.Writable)
	}
	if c.ShouldClose() {
		s.freeClient(c)
		return false
	}
	return true
}

func (s *Server) freeClient(c *connection.Connection) {
	if c.Node == nil {
		return
	}
	s.el.DeleteFileEvent(c.Fd(), ae.Readable|ae.Writable)
	if err := unix.Close(c.Fd()); err != nil {
		logger.Debugf("close client %s: %v", c.RemoteAddr(), err)
	}
	s.clients.DelNode(c.Node)
	c.Node = nil
	s.db.AfterClientClose(c)
}

func (s *Server) clientList() []redis.Connection {
	result := make([]redis.Connection, 0, s.clients.Len())
	for n := s.clients.First(); n != nil; n = n.Next() {
		result = append(result, n.Value())
	}
	return result
}

func (s *Server) hz() int {
	hz := s.db.Hz()
	if hz < 1 {
		return 1
	}
	if hz > maxHz {
		return maxHz
	}
	return hz
}

func (s *Server) serverCron(el *ae.EventLoop, id int64, clientData any) int {
	if s.interrupted.Swap(false) {
		s.prepareForShutdown()
	}
	s.db.ServerCron()
	s.clientsCron()
	if s.db.ShutdownRequested() {
		el.Stop()
	}
	return 1000 / s.hz()
}

// clientsCron visits a slice of the clients on every call so that each client is checked
// about once per second. The tail is rotated to the head and processed.
func (s *Server) clientsCron() {
	numClients := s.clients.Len()
	iterations := numClients / s.hz()
	if iterations < clientsCronMinIter {
		iterations = min(numClients, clientsCronMinIter)
	}
	now := time.Now()
	for ; iterations > 0 && s.clients.Len() > 0; iterations-- {
		s.clients.Rotate()
		c := s.clients.First().Value()
		if s.clientsCronHandleTimeout(c, now) {
			continue
		}
		clientsCronResizeQueryBuffer(c, now)
	}
}

func (s *Server) clientsCronHandleTimeout(c *connection.Connection, now time.Time) bool {
	if s.props.Timeout <= 0 || c.HasPendingReplies() {
		return false
	}
	if c.IdleTime(now) <= time.Duration(s.props.Timeout)*time.Second {
		return false
	}
	logger.Infof("closing idle client %s", c.RemoteAddr())
	s.freeClient(c)
	return true
}

func clientsCronResizeQueryBuffer(c *connection.Connection, now time.Time) {
	if c.QueryBuf.Avail() > queryBufShrinkAvail && c.IdleTime(now) > queryBufShrinkIdle {
		c.QueryBuf.RemoveFreeSpace()
	}
}

// prepareForShutdown runs SHUTDOWN on behalf of a signal, the server keeps running if the
// final save fails
func (s *Server) prepareForShutdown() {
	reply := s.db.Exec(nil, utils.ToCmdLine("shutdown"))
	if protocol.IsErrorReply(reply) {
		logger.Warn("errors trying to shut down the server, keep serving")
	}
}

func (s *Server) shutdown() {
	s.handleClientsWithPendingWrites()
	for i := 0; i < shutdownFlushAttempts; i++ {
		for n := s.clients.First(); n != nil; {
			next := n.Next()
			if c := n.Value(); c.HasPendingReplies() {
				s.writeToClient(c)
			}
			n = next
		}
	}
	for s.clients.Len() > 0 {
		s.freeClient(s.clients.First().Value())
	}
	s.el.DeleteFileEvent(s.listenFd, ae.Readable)
	_ = unix.Close(s.listenFd)
	s.db.Close()
	if err := s.el.Close(); err != nil {
		logger.Warnf("close event loop: %v", err)
	}
	logger.Info("redict is now ready to exit, bye bye...")
}
