package acl

import (
	"fmt"
	"time"

	"github.com/gomlx/goacl/driver"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Stream is an ordered queue of commands on the device: commands execute in the order they are submitted.
//
// It is attached to the CurrentCtx that created it, and it is destroyed when that scope ends, unless it is
// destroyed or sporulated before.
type Stream struct {
	cur    *CurrentCtx
	handle driver.Handle
	att    attachment
}

// Stream creates a new stream in the current context.
func (cur *CurrentCtx) Stream() (*Stream, error) {
	if err := cur.checkActive("CurrentCtx.Stream"); err != nil {
		return nil, err
	}
	handle, status := cur.rt.api.CreateStream()
	if err := check("aclrtCreateStream", status); err != nil {
		return nil, err
	}
	cur.rt.streamsAlive.Add(1)
	klog.V(2).Infof("created Stream(%#x) in context %#x", uintptr(handle), uintptr(cur.raw))
	return cur.attachStream(handle), nil
}

// WrapStream takes ownership of a native stream, which must have been created in the current context.
func (cur *CurrentCtx) WrapStream(handle driver.Handle) *Stream {
	cur.mustBeActive("CurrentCtx.WrapStream")
	cur.rt.streamsAlive.Add(1)
	return cur.attachStream(handle)
}

func (cur *CurrentCtx) attachStream(handle driver.Handle) *Stream {
	s := &Stream{cur: cur, handle: handle}
	s.att = attach(&cur.streams, s)
	return s
}

// String implements fmt.Stringer.
func (s *Stream) String() string {
	if s == nil {
		return "Stream(nil)"
	}
	return fmt.Sprintf("Stream(%#x)", uintptr(s.handle))
}

func (s *Stream) check() error {
	if s == nil || s.handle == 0 {
		return errors.New("Stream is nil, or it has been destroyed or sporulated already")
	}
	return nil
}

// AsRaw returns the native aclrtStream handle. It must not be used after the Stream is destroyed.
func (s *Stream) AsRaw() driver.Handle { return s.handle }

// Context returns the CurrentCtx the stream is attached to.
func (s *Stream) Context() *CurrentCtx { return s.cur }

// Synchronize blocks until all the commands submitted to the stream are finished.
func (s *Stream) Synchronize() error {
	if err := s.check(); err != nil {
		return err
	}
	return check("aclrtSynchronizeStream", s.cur.rt.api.SynchronizeStream(s.handle))
}

// IsComplete returns whether all the commands submitted to the stream are finished, without blocking.
func (s *Stream) IsComplete() (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	streamStatus, status := s.cur.rt.api.StreamQuery(s.handle)
	if err := check("aclrtStreamQuery", status); err != nil {
		return false, err
	}
	if streamStatus == driver.StreamReserved {
		panicf("aclrtStreamQuery returned the reserved status for %s", s)
	}
	return streamStatus == driver.StreamComplete, nil
}

// Record creates an Event recorded at the current tail of the stream.
func (s *Stream) Record() (*Event, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := s.cur.checkActive("Stream.Record"); err != nil {
		return nil, err
	}
	api := s.cur.rt.api
	handle, status := api.CreateEvent()
	if err := check("aclrtCreateEvent", status); err != nil {
		return nil, err
	}
	s.cur.rt.eventsAlive.Add(1)
	e := s.cur.attachEvent(handle)
	if err := check("aclrtRecordEvent", api.RecordEvent(handle, s.handle)); err != nil {
		if destroyErr := e.Destroy(); destroyErr != nil {
			klog.Errorf("failed to destroy unrecorded event: %+v", destroyErr)
		}
		return nil, err
	}
	return e, nil
}

// WaitFor makes the commands submitted to the stream after this call wait for the event, possibly recorded on
// another stream.
func (s *Stream) WaitFor(e *Event) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := e.check(); err != nil {
		return err
	}
	return check("aclrtStreamWaitEvent", s.cur.rt.api.StreamWaitEvent(s.handle, e.handle))
}

// Bench measures the average time of f on the device: it calls f warmUp times, then records a start event,
// calls f times more, records an end event and waits for it.
//
// f is given the iteration index (it restarts at 0 after warm-up) and the stream, to which it should submit
// its work. Errors returned by f interrupt the benchmark.
func (s *Stream) Bench(f func(i int, s *Stream) error, times, warmUp int) (time.Duration, error) {
	if times <= 0 || warmUp < 0 {
		return 0, errors.Errorf("Stream.Bench requires times > 0 and warmUp >= 0, got times=%d, warmUp=%d", times, warmUp)
	}
	if err := s.check(); err != nil {
		return 0, err
	}
	for i := range warmUp {
		if err := f(i, s); err != nil {
			return 0, errors.WithMessagef(err, "Stream.Bench warm-up iteration %d", i)
		}
	}
	start, err := s.Record()
	if err != nil {
		return 0, err
	}
	defer destroyOrLog(start)
	for i := range times {
		if err := f(i, s); err != nil {
			return 0, errors.WithMessagef(err, "Stream.Bench iteration %d", i)
		}
	}
	end, err := s.Record()
	if err != nil {
		return 0, err
	}
	defer destroyOrLog(end)
	if err := end.Synchronize(); err != nil {
		return 0, err
	}
	elapsed, err := end.ElapseFrom(start)
	if err != nil {
		return 0, err
	}
	return elapsed / time.Duration(times), nil
}

// Sporulate detaches the stream from its CurrentCtx: the returned spore owns the native stream, and this Stream
// becomes invalid.
func (s *Stream) Sporulate() *StreamSpore {
	if err := s.check(); err != nil {
		panic(err)
	}
	sp := newStreamSpore(s.cur.raw, s.handle)
	s.handle = 0
	s.att.detach()
	return sp
}

// Destroy waits for the commands submitted to the stream to finish, and then destroys it.
// It is a no-op if the stream was already destroyed or sporulated.
func (s *Stream) Destroy() error {
	if s == nil || s.cur == nil || s.handle == 0 {
		// Already destroyed, no-op.
		return nil
	}
	api := s.cur.rt.api
	if err := check("aclrtSynchronizeStream", api.SynchronizeStream(s.handle)); err != nil {
		return errors.WithMessagef(err, "synchronizing %s before destroying it", s)
	}
	handle := s.handle
	s.handle = 0
	s.att.detach()
	s.cur.rt.streamsAlive.Add(-1)
	return check("aclrtDestroyStream", api.DestroyStream(handle))
}

func destroyOrLog(r interface{ Destroy() error }) {
	if err := r.Destroy(); err != nil {
		klog.Errorf("failed to destroy %v: %+v", r, err)
	}
}
