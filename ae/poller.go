package ae

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller is the OS readiness backend.
// oldMask is the mask registered before the call, addEvent merges mask into it and delEvent
// removes mask from it.
type poller interface {
	resize(setSize int) error
	addEvent(fd int, oldMask int, mask int) error
	delEvent(fd int, oldMask int, mask int) error
	// poll waits up to timeoutMs, -1 blocks, and fills fired. Interrupted waits report no event.
	poll(timeoutMs int, fired []firedEvent) (int, error)
	close() error
	name() string
}

// Wait blocks until fd is ready for mask or ms milliseconds elapsed, and returns the ready mask.
// It is meant for handshake style blocking I/O outside of the loop.
func Wait(fd int, mask int, ms int) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(fd)}}
	if mask&Readable != 0 {
		pfd[0].Events |= unix.POLLIN
	}
	if mask&Writable != 0 {
		pfd[0].Events |= unix.POLLOUT
	}
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		return 0, fmt.Errorf("wait fd %d: %w", fd, err)
	}
	if n == 0 {
		return None, nil
	}
	return pollMask(pfd[0].Revents), nil
}

func pollMask(revents int16) int {
	mask := None
	if revents&unix.POLLIN != 0 {
		mask |= Readable
	}
	if revents&unix.POLLOUT != 0 {
		mask |= Writable
	}
	if revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		mask |= Writable
	}
	return mask
}

// pollPoller is the portable backend built on poll(2)
type pollPoller struct {
	masks []int
	fds   []unix.PollFd
}

func newPollPoller(setSize int) (poller, error) {
	return &pollPoller{
		masks: make([]int, setSize),
	}, nil
}

func (p *pollPoller) resize(setSize int) error {
	masks := make([]int, setSize)
	copy(masks, p.masks)
	p.masks = masks
	return nil
}

func (p *pollPoller) addEvent(fd int, oldMask int, mask int) error {
	p.masks[fd] = oldMask | mask
	return nil
}

func (p *pollPoller) delEvent(fd int, oldMask int, mask int) error {
	p.masks[fd] = oldMask &^ mask
	return nil
}

func (p *pollPoller) poll(timeoutMs int, fired []firedEvent) (int, error) {
	p.fds = p.fds[:0]
	for fd, mask := range p.masks {
		if mask == None {
			continue
		}
		pfd := unix.PollFd{Fd: int32(fd)}
		if mask&Readable != 0 {
			pfd.Events |= unix.POLLIN
		}
		if mask&Writable != 0 {
			pfd.Events |= unix.POLLOUT
		}
		p.fds = append(p.fds, pfd)
	}
	n, err := unix.Poll(p.fds, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil || n <= 0 {
		return 0, err
	}
	numEvents := 0
	for _, pfd := range p.fds {
		if pfd.Revents == 0 || numEvents >= len(fired) {
			continue
		}
		mask := None
		if pfd.Revents&unix.POLLIN != 0 {
			mask |= Readable
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			mask |= Writable
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			mask |= Readable | Writable
		}
		fired[numEvents] = firedEvent{fd: int(pfd.Fd), mask: mask}
		numEvents++
	}
	return numEvents, nil
}

func (p *pollPoller) close() error {
	p.masks = nil
	return nil
}

func (p *pollPoller) name() string {
	return "poll"
}
