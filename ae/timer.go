package ae

import "sort"

// CreateTimeEvent schedules proc to run after ms milliseconds and returns the timer id.
// Ids increase monotonically so a timer can be deleted even if others share its deadline.
func (el *EventLoop) CreateTimeEvent(ms int64, proc TimeProc, clientData any, finalizer EventFinalizerProc) int64 {
	id := el.timeEventNextID
	el.timeEventNextID++
	te := &timeEvent{
		id:         id,
		when:       el.clock() + ms,
		proc:       proc,
		finalizer:  finalizer,
		clientData: clientData,
		next:       el.timeEventHead,
	}
	el.timeEventHead = te
	return id
}

// DeleteTimeEvent marks the timer deleted, it is unlinked and finalized on the next timer pass
func (el *EventLoop) DeleteTimeEvent(id int64) error {
	for te := el.timeEventHead; te != nil; te = te.next {
		if te.id == id {
			te.id = deletedEventID
			return nil
		}
	}
	return ErrNoSuchEvent
}

// searchNearestTimer scans every timer, the list is expected to stay short
func (el *EventLoop) searchNearestTimer() *timeEvent {
	var nearest *timeEvent
	for te := el.timeEventHead; te != nil; te = te.next {
		if te.id == deletedEventID {
			continue
		}
		if nearest == nil || te.when < nearest.when {
			nearest = te
		}
	}
	return nearest
}

func (el *EventLoop) processTimeEvents() int {
	processed := 0
	now := el.clock()
	// the clock moved backward, fire everything now rather than wait for a deadline
	// that may be far in the future
	if now < el.lastTime {
		for te := el.timeEventHead; te != nil; te = te.next {
			te.when = 0
		}
	}
	el.lastTime = now

	// timers created by the procs below wait for the next pass
	maxID := el.timeEventNextID - 1
	var due []*timeEvent
	var prev *timeEvent
	te := el.timeEventHead
	for te != nil {
		next := te.next
		if te.id == deletedEventID {
			if te.refcount > 0 {
				prev = te
				te = next
				continue
			}
			if prev == nil {
				el.timeEventHead = next
			} else {
				prev.next = next
			}
			if te.finalizer != nil {
				te.finalizer(el, te.clientData)
			}
			te = next
			continue
		}
		if te.id <= maxID && te.when <= now {
			due = append(due, te)
		}
		prev = te
		te = next
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].when != due[j].when {
			return due[i].when < due[j].when
		}
		return due[i].id < due[j].id
	})
	for _, te := range due {
		// deleted by a proc fired earlier in this pass
		if te.id == deletedEventID {
			continue
		}
		te.refcount++
		retval := te.proc(el, te.id, te.clientData)
		te.refcount--
		processed++
		if retval != NoMore {
			if te.id != deletedEventID {
				te.when = el.clock() + int64(retval)
			}
		} else {
			te.id = deletedEventID
		}
	}
	return processed
}
