//go:build linux

package ae

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func newPoller(setSize int) (poller, error) {
	return newEpollPoller(setSize)
}

func newEpollPoller(setSize int) (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, setSize),
	}, nil
}

func (p *epollPoller) resize(setSize int) error {
	p.events = make([]unix.EpollEvent, setSize)
	return nil
}

func epollEvents(mask int) uint32 {
	var events uint32
	if mask&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func (p *epollPoller) addEvent(fd int, oldMask int, mask int) error {
	// already watched fd needs a MOD
	op := unix.EPOLL_CTL_ADD
	if oldMask != None {
		op = unix.EPOLL_CTL_MOD
	}
	ev := unix.EpollEvent{
		Events: epollEvents(oldMask | mask),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

func (p *epollPoller) delEvent(fd int, oldMask int, mask int) error {
	remaining := oldMask &^ mask
	ev := unix.EpollEvent{
		Events: epollEvents(remaining),
		Fd:     int32(fd),
	}
	if remaining != None {
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	// a non nil event is required by kernels before 2.6.9
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &ev)
}

func (p *epollPoller) poll(timeoutMs int, fired []firedEvent) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		e := p.events[i]
		mask := None
		if e.Events&unix.EPOLLIN != 0 {
			mask |= Readable
		}
		if e.Events&unix.EPOLLOUT != 0 {
			mask |= Writable
		}
		if e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask |= Readable | Writable
		}
		fired[i] = firedEvent{fd: int(e.Fd), mask: mask}
	}
	return n, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) name() string {
	return "epoll"
}
