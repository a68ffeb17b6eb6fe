// Package ae is a single-threaded reactor multiplexing file descriptor readiness and timers.
//
// Every callback runs on the goroutine calling ProcessEvents or Main, one at a time and to
// completion. The only blocking point is the readiness poll, whose timeout is bounded by the
// nearest timer.
package ae

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/hdt3213/redict/lib/logger"
)

// File event masks
const (
	None     = 0
	Readable = 1
	Writable = 2
)

// ProcessEvents flags
const (
	FileEvents      = 1 << 0
	TimeEvents      = 1 << 1
	AllEvents       = FileEvents | TimeEvents
	DontWait        = 1 << 2
	CallBeforeSleep = 1 << 3
	CallAfterSleep  = 1 << 4
)

// NoMore returned by a TimeProc deletes the timer
const NoMore = -1

const deletedEventID = -1

var (
	// ErrOutOfRange is returned when a descriptor does not fit the configured set size
	ErrOutOfRange = errors.New("ae: fd out of range")
	// ErrNoSuchEvent is returned when deleting an unknown timer
	ErrNoSuchEvent = errors.New("ae: no such event")
)

// FileProc handles a ready descriptor, mask holds the readiness reported by the poller
type FileProc func(el *EventLoop, fd int, clientData any, mask int)

// TimeProc handles a timer, it returns the delay in milliseconds before the next call or NoMore
type TimeProc func(el *EventLoop, id int64, clientData any) int

// EventFinalizerProc is called once a deleted timer is removed
type EventFinalizerProc func(el *EventLoop, clientData any)

// SleepProc runs around the readiness poll
type SleepProc func(el *EventLoop)

type fileEvent struct {
	mask       int
	rfileProc  FileProc
	wfileProc  FileProc
	clientData any
}

type firedEvent struct {
	fd   int
	mask int
}

type timeEvent struct {
	id int64
	// when is the unix time in milliseconds the timer is due
	when       int64
	proc       TimeProc
	finalizer  EventFinalizerProc
	clientData any
	next       *timeEvent
	// refcount prevents freeing a timer while its proc runs a nested loop iteration
	refcount int
}

// EventLoop holds the registered file events and timers
type EventLoop struct {
	maxfd           int
	setSize         int
	timeEventNextID int64
	lastTime        int64
	events          []fileEvent
	fired           []firedEvent
	timeEventHead   *timeEvent
	stop            bool
	api             poller
	beforeSleep     SleepProc
	afterSleep      SleepProc
	// clock returns the unix time in milliseconds, tests replace it to simulate clock skew
	clock func() int64
}

func wallClock() int64 {
	return time.Now().UnixMilli()
}

// New creates an event loop able to watch descriptors in [0, setSize)
func New(setSize int) (*EventLoop, error) {
	api, err := newPoller(setSize)
	if err != nil {
		return nil, err
	}
	return newWithPoller(setSize, api), nil
}

func newWithPoller(setSize int, api poller) *EventLoop {
	el := &EventLoop{
		maxfd:   -1,
		setSize: setSize,
		events:  make([]fileEvent, setSize),
		fired:   make([]firedEvent, setSize),
		api:     api,
		clock:   wallClock,
	}
	el.lastTime = el.clock()
	return el
}

// Close releases the poller, the loop must not be used afterwards
func (el *EventLoop) Close() error {
	el.events = nil
	el.fired = nil
	el.timeEventHead = nil
	return el.api.close()
}

// Stop makes Main return after the current iteration
func (el *EventLoop) Stop() {
	el.stop = true
}

// GetSetSize returns the descriptor capacity
func (el *EventLoop) GetSetSize() int {
	return el.setSize
}

// MaxFD returns the highest registered descriptor or -1
func (el *EventLoop) MaxFD() int {
	return el.maxfd
}

// ResizeSetSize changes the descriptor capacity. It fails with ErrOutOfRange if a registered
// descriptor would not fit.
func (el *EventLoop) ResizeSetSize(setSize int) error {
	if setSize == el.setSize {
		return nil
	}
	if el.maxfd >= setSize {
		return fmt.Errorf("resize to %d with fd %d registered: %w", setSize, el.maxfd, ErrOutOfRange)
	}
	if err := el.api.resize(setSize); err != nil {
		return err
	}
	events := make([]fileEvent, setSize)
	copy(events, el.events)
	el.events = events
	el.fired = make([]firedEvent, setSize)
	el.setSize = setSize
	return nil
}

// SetBeforeSleepProc sets the hook invoked before each poll
func (el *EventLoop) SetBeforeSleepProc(proc SleepProc) {
	el.beforeSleep = proc
}

// SetAfterSleepProc sets the hook invoked after each poll
func (el *EventLoop) SetAfterSleepProc(proc SleepProc) {
	el.afterSleep = proc
}

// ApiName returns the name of the readiness backend
func (el *EventLoop) ApiName() string {
	return el.api.name()
}

// CreateFileEvent watches fd for mask. Masks accumulate over successive registrations.
func (el *EventLoop) CreateFileEvent(fd int, mask int, proc FileProc, clientData any) error {
	if fd < 0 || fd >= el.setSize {
		return fmt.Errorf("register fd %d with set size %d: %w", fd, el.setSize, ErrOutOfRange)
	}
	fe := &el.events[fd]
	if err := el.api.addEvent(fd, fe.mask, mask); err != nil {
		return fmt.Errorf("register fd %d: %w", fd, err)
	}
	fe.mask |= mask
	if mask&Readable != 0 {
		fe.rfileProc = proc
	}
	if mask&Writable != 0 {
		fe.wfileProc = proc
	}
	fe.clientData = clientData
	if fd > el.maxfd {
		el.maxfd = fd
	}
	return nil
}

// DeleteFileEvent stops watching fd for mask
func (el *EventLoop) DeleteFileEvent(fd int, mask int) {
	if fd < 0 || fd >= el.setSize {
		return
	}
	fe := &el.events[fd]
	if fe.mask == None {
		return
	}
	if err := el.api.delEvent(fd, fe.mask, mask); err != nil {
		logger.Warnf("unregister fd %d: %v", fd, err)
	}
	fe.mask &^= mask
	if fe.mask&Readable == 0 {
		fe.rfileProc = nil
	}
	if fe.mask&Writable == 0 {
		fe.wfileProc = nil
	}
	if fd == el.maxfd && fe.mask == None {
		j := el.maxfd - 1
		for ; j >= 0; j-- {
			if el.events[j].mask != None {
				break
			}
		}
		el.maxfd = j
	}
}

// GetFileEvents returns the mask registered for fd
func (el *EventLoop) GetFileEvents(fd int) int {
	if fd < 0 || fd >= el.setSize {
		return None
	}
	return el.events[fd].mask
}

func sameProc(a, b FileProc) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// ProcessEvents runs one iteration: before-sleep hook, poll bounded by the nearest timer,
// fired file events, then due timers. Returns the number of events processed.
func (el *EventLoop) ProcessEvents(flags int) int {
	processed := 0
	if flags&TimeEvents == 0 && flags&FileEvents == 0 {
		return 0
	}
	// timers created by the hook bound this poll
	if el.beforeSleep != nil && flags&CallBeforeSleep != 0 {
		el.beforeSleep(el)
	}
	// poll even without descriptors to sleep until the next timer
	if el.maxfd != -1 || (flags&TimeEvents != 0 && flags&DontWait == 0) {
		timeout := -1
		if flags&DontWait != 0 {
			timeout = 0
		} else if flags&TimeEvents != 0 {
			if shortest := el.searchNearestTimer(); shortest != nil {
				ms := shortest.when - el.clock()
				if ms < 0 {
					ms = 0
				}
				timeout = int(ms)
			}
		}
		numEvents, err := el.api.poll(timeout, el.fired)
		if err != nil {
			logger.Errorf("%s poll failed: %v", el.api.name(), err)
		}
		if el.afterSleep != nil && flags&CallAfterSleep != 0 {
			el.afterSleep(el)
		}
		for j := 0; j < numEvents; j++ {
			fd := el.fired[j].fd
			mask := el.fired[j].mask
			if fd >= len(el.events) {
				continue
			}
			fired := 0
			fe := &el.events[fd]
			if fe.mask&mask&Readable != 0 {
				fe.rfileProc(el, fd, fe.clientData, mask)
				fired++
			}
			// the read proc may have resized or unregistered
			if fd >= len(el.events) {
				continue
			}
			fe = &el.events[fd]
			if fe.mask&mask&Writable != 0 {
				if fired == 0 || !sameProc(fe.wfileProc, fe.rfileProc) {
					fe.wfileProc(el, fd, fe.clientData, mask)
					fired++
				}
			}
			processed++
		}
	}
	if flags&TimeEvents != 0 {
		processed += el.processTimeEvents()
	}
	return processed
}

// Main runs the loop until Stop is called
func (el *EventLoop) Main() {
	el.stop = false
	for !el.stop {
		el.ProcessEvents(AllEvents | CallBeforeSleep | CallAfterSleep)
	}
}
