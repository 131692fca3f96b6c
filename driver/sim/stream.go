package sim

import (
	"sync"
	"time"

	"github.com/gomlx/goacl/driver"
)

// stream executes its commands in order, on its own goroutine.
type stream struct {
	ctx driver.Handle

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	pending int // Commands enqueued and not yet finished.
	closed  bool
}

func newStream(ctx driver.Handle) *stream {
	s := &stream{ctx: ctx}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// run executes the queued commands until the stream is closed and drained.
func (s *stream) run() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			return
		}
		cmd := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		cmd()
		s.mu.Lock()
		s.pending--
		s.cond.Broadcast()
	}
}

func (s *stream) enqueue(cmd func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.queue = append(s.queue, cmd)
	s.pending++
	s.cond.Broadcast()
	return true
}

func (s *stream) synchronize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.cond.Wait()
	}
}

func (s *stream) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending == 0
}

// close stops the worker goroutine once the already enqueued commands are executed.
func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// event keeps track of its recordings by generation: each RecordEvent increments recorded, and
// reached is updated when the stream executes the record command.
type event struct {
	mu                sync.Mutex
	cond              *sync.Cond
	recorded, reached uint64
	timestamp         time.Time
}

func newEvent() *event {
	e := &event{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *event) record() (generation uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorded++
	return e.recorded
}

func (e *event) lastRecorded() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorded
}

func (e *event) reach(generation uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation > e.reached {
		e.reached = generation
		e.timestamp = time.Now()
	}
	e.cond.Broadcast()
}

func (e *event) wait(generation uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.reached < generation {
		e.cond.Wait()
	}
}

// completedAt returns the timestamp of the last recording, if it has been reached.
func (e *event) completedAt() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recorded == 0 || e.reached < e.recorded {
		return time.Time{}, false
	}
	return e.timestamp, true
}

// CreateStream implements driver.API. It requires a current context.
func (d *Driver) CreateStream() (driver.Handle, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkCurrent(); !status.Ok() {
		return 0, status
	}
	h := d.newHandle()
	d.streams[h] = newStream(d.current)
	return h, driver.Success
}

// DestroyStream implements driver.API. The stream's context must be current.
// Commands already enqueued are still executed.
func (d *Driver) DestroyStream(stream driver.Handle) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return status
	}
	s, found := d.streams[stream]
	if !found {
		return driver.ErrorRtParamInvalid
	}
	if s.ctx != d.current {
		return driver.ErrorRtStreamContext
	}
	delete(d.streams, stream)
	s.close()
	return driver.Success
}

func (d *Driver) getStream(stream driver.Handle) (*stream, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return nil, status
	}
	s, found := d.streams[stream]
	if !found {
		return nil, driver.ErrorRtParamInvalid
	}
	return s, driver.Success
}

func (d *Driver) getEvent(event driver.Handle) (*event, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return nil, status
	}
	e, found := d.events[event]
	if !found {
		return nil, driver.ErrorRtParamInvalid
	}
	return e, driver.Success
}

// SynchronizeStream implements driver.API.
func (d *Driver) SynchronizeStream(stream driver.Handle) driver.Status {
	s, status := d.getStream(stream)
	if !status.Ok() {
		return status
	}
	s.synchronize()
	return driver.Success
}

// StreamQuery implements driver.API.
func (d *Driver) StreamQuery(stream driver.Handle) (driver.StreamStatus, driver.Status) {
	s, status := d.getStream(stream)
	if !status.Ok() {
		return driver.StreamReserved, status
	}
	if s.idle() {
		return driver.StreamComplete, driver.Success
	}
	return driver.StreamNotReady, driver.Success
}

// StreamWaitEvent implements driver.API: following commands on the stream wait for the last
// recording of the event. It's a no-op if the event was never recorded.
func (d *Driver) StreamWaitEvent(stream, event driver.Handle) driver.Status {
	s, status := d.getStream(stream)
	if !status.Ok() {
		return status
	}
	e, status := d.getEvent(event)
	if !status.Ok() {
		return status
	}
	generation := e.lastRecorded()
	if generation == 0 {
		return driver.Success
	}
	if !s.enqueue(func() { e.wait(generation) }) {
		return driver.ErrorRtParamInvalid
	}
	return driver.Success
}

// Launch enqueues an arbitrary command on the stream, as if it were a kernel.
// It is used to simulate device work in tests.
func (d *Driver) Launch(stream driver.Handle, cmd func()) driver.Status {
	s, status := d.getStream(stream)
	if !status.Ok() {
		return status
	}
	if !s.enqueue(cmd) {
		return driver.ErrorRtParamInvalid
	}
	return driver.Success
}

// CreateEvent implements driver.API. It requires a current context.
func (d *Driver) CreateEvent() (driver.Handle, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkCurrent(); !status.Ok() {
		return 0, status
	}
	h := d.newHandle()
	d.events[h] = newEvent()
	return h, driver.Success
}

// DestroyEvent implements driver.API.
func (d *Driver) DestroyEvent(event driver.Handle) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return status
	}
	if _, found := d.events[event]; !found {
		return driver.ErrorRtParamInvalid
	}
	delete(d.events, event)
	return driver.Success
}

// RecordEvent implements driver.API.
func (d *Driver) RecordEvent(event, stream driver.Handle) driver.Status {
	e, status := d.getEvent(event)
	if !status.Ok() {
		return status
	}
	s, status := d.getStream(stream)
	if !status.Ok() {
		return status
	}
	generation := e.record()
	if !s.enqueue(func() { e.reach(generation) }) {
		return driver.ErrorRtParamInvalid
	}
	return driver.Success
}

// SynchronizeEvent implements driver.API.
func (d *Driver) SynchronizeEvent(event driver.Handle) driver.Status {
	e, status := d.getEvent(event)
	if !status.Ok() {
		return status
	}
	e.wait(e.lastRecorded())
	return driver.Success
}

// EventElapsedTime implements driver.API. Both events must have been recorded and reached.
func (d *Driver) EventElapsedTime(start, end driver.Handle) (float32, driver.Status) {
	startEvent, status := d.getEvent(start)
	if !status.Ok() {
		return 0, status
	}
	endEvent, status := d.getEvent(end)
	if !status.Ok() {
		return 0, status
	}
	t0, ok0 := startEvent.completedAt()
	t1, ok1 := endEvent.completedAt()
	if !ok0 || !ok1 {
		return 0, driver.ErrorRtEventTimestamp
	}
	return float32(float64(t1.Sub(t0)) / float64(time.Millisecond)), driver.Success
}
