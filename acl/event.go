package acl

import (
	"fmt"
	"time"

	"github.com/gomlx/goacl/driver"
	"github.com/pkg/errors"
)

// Event is a marker recorded on a stream (see Stream.Record): it is reached when all the commands submitted to the
// stream before it are finished.
type Event struct {
	cur    *CurrentCtx
	handle driver.Handle
	att    attachment
}

// WrapEvent takes ownership of a native event, which must have been created in the current context.
func (cur *CurrentCtx) WrapEvent(handle driver.Handle) *Event {
	cur.mustBeActive("CurrentCtx.WrapEvent")
	cur.rt.eventsAlive.Add(1)
	return cur.attachEvent(handle)
}

func (cur *CurrentCtx) attachEvent(handle driver.Handle) *Event {
	e := &Event{cur: cur, handle: handle}
	e.att = attach(&cur.others, e)
	return e
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	if e == nil {
		return "Event(nil)"
	}
	return fmt.Sprintf("Event(%#x)", uintptr(e.handle))
}

func (e *Event) check() error {
	if e == nil || e.handle == 0 {
		return errors.New("Event is nil, or it has been destroyed or sporulated already")
	}
	return nil
}

// AsRaw returns the native aclrtEvent handle. It must not be used after the Event is destroyed.
func (e *Event) AsRaw() driver.Handle { return e.handle }

// Synchronize blocks until the event is reached.
func (e *Event) Synchronize() error {
	if err := e.check(); err != nil {
		return err
	}
	return check("aclrtSynchronizeEvent", e.cur.rt.api.SynchronizeEvent(e.handle))
}

// ElapseFrom returns the time measured by the device between start and this event. Both must have been reached.
func (e *Event) ElapseFrom(start *Event) (time.Duration, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	if err := start.check(); err != nil {
		return 0, err
	}
	ms, status := e.cur.rt.api.EventElapsedTime(start.handle, e.handle)
	if err := check("aclrtEventElapsedTime", status); err != nil {
		return 0, err
	}
	return time.Duration(float64(ms) * float64(time.Millisecond)), nil
}

// Sporulate detaches the event from its CurrentCtx: the returned spore owns the native event, and this Event
// becomes invalid.
func (e *Event) Sporulate() *EventSpore {
	if err := e.check(); err != nil {
		panic(err)
	}
	sp := newEventSpore(e.cur.raw, e.handle)
	e.handle = 0
	e.att.detach()
	return sp
}

// Destroy the event. If it has not been reached yet, the behavior is up to the native runtime.
// It is a no-op if the event was already destroyed or sporulated.
func (e *Event) Destroy() error {
	if e == nil || e.cur == nil || e.handle == 0 {
		// Already destroyed, no-op.
		return nil
	}
	handle := e.handle
	e.handle = 0
	e.att.detach()
	e.cur.rt.eventsAlive.Add(-1)
	return check("aclrtDestroyEvent", e.cur.rt.api.DestroyEvent(handle))
}
