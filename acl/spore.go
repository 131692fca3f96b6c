package acl

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/goacl/driver"
	"k8s.io/klog/v2"
)

// rawContainer holds a native resource and the context that owns it.
type rawContainer[R any] struct {
	ctx driver.Handle
	rss R
}

// spore is the detached form of a resource: it holds no *CurrentCtx, so it can be kept beyond the Apply call
// that created the resource, and sent to other goroutines.
//
// It sprouts back into an attached resource exactly once.
type spore[R any] struct {
	mu        sync.Mutex
	container rawContainer[R]
	sprouted  bool
	leak      *leakTracker
}

// take hands the resource over to cur. If checked, cur must be the context that owns the resource.
// Misuse is a programmer error, and it panics.
func (s *spore[R]) take(cur *CurrentCtx, checked bool, kind string) R {
	cur.mustBeActive(kind + ".Sprout")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sprouted {
		panicf("%s already sprouted", kind)
	}
	if checked && s.container.ctx != cur.raw {
		panicf("%s owned by context %#x can't sprout in context %#x", kind, uintptr(s.container.ctx), uintptr(cur.raw))
	}
	s.sprouted = true
	s.leak.release()
	return s.container.rss
}

func (s *spore[R]) ownerContext() driver.Handle {
	return s.container.ctx
}

// leakTracker logs a warning if the object it is attached to is garbage collected before release is called.
//
// Native resources are never freed from the garbage collector: it could happen in any thread, where the owning
// context is not current.
type leakTracker struct {
	what     string
	released atomic.Bool
}

func newLeakTracker[T any](owner *T, what string) *leakTracker {
	lt := &leakTracker{what: what}
	runtime.AddCleanup(owner, func(lt *leakTracker) {
		if !lt.released.Load() {
			klog.Warningf("%s garbage collected without being released: its native resource leaked", lt.what)
		}
	}, lt)
	return lt
}

func (lt *leakTracker) release() {
	if lt != nil {
		lt.released.Store(true)
	}
}

// StreamSpore is a detached Stream. See Stream.Sporulate.
type StreamSpore struct {
	spore[driver.Handle]
}

func newStreamSpore(ctx, handle driver.Handle) *StreamSpore {
	s := &StreamSpore{}
	s.container = rawContainer[driver.Handle]{ctx: ctx, rss: handle}
	s.leak = newLeakTracker(s, fmt.Sprintf("StreamSpore(%#x)", uintptr(handle)))
	return s
}

// Sprout attaches the stream back to cur, which must be the context that created it. It panics otherwise, or if
// the spore already sprouted.
func (s *StreamSpore) Sprout(cur *CurrentCtx) *Stream {
	return cur.attachStream(s.take(cur, true, "StreamSpore"))
}

// SproutUnchecked is like Sprout, but it doesn't check the context: the caller guarantees the stream was
// created in the context of cur.
func (s *StreamSpore) SproutUnchecked(cur *CurrentCtx) *Stream {
	return cur.attachStream(s.take(cur, false, "StreamSpore"))
}

// OwnerContext returns the handle of the context that owns the stream.
func (s *StreamSpore) OwnerContext() driver.Handle { return s.ownerContext() }

// AsRaw returns the native aclrtStream handle.
func (s *StreamSpore) AsRaw() driver.Handle { return s.container.rss }

// EventSpore is a detached Event. See Event.Sporulate.
type EventSpore struct {
	spore[driver.Handle]
}

func newEventSpore(ctx, handle driver.Handle) *EventSpore {
	s := &EventSpore{}
	s.container = rawContainer[driver.Handle]{ctx: ctx, rss: handle}
	s.leak = newLeakTracker(s, fmt.Sprintf("EventSpore(%#x)", uintptr(handle)))
	return s
}

// Sprout attaches the event back to cur, which must be the context that created it.
func (s *EventSpore) Sprout(cur *CurrentCtx) *Event {
	return cur.attachEvent(s.take(cur, true, "EventSpore"))
}

// SproutUnchecked is like Sprout, but it doesn't check the context.
func (s *EventSpore) SproutUnchecked(cur *CurrentCtx) *Event {
	return cur.attachEvent(s.take(cur, false, "EventSpore"))
}

// OwnerContext returns the handle of the context that owns the event.
func (s *EventSpore) OwnerContext() driver.Handle { return s.ownerContext() }

// AsRaw returns the native aclrtEvent handle.
func (s *EventSpore) AsRaw() driver.Handle { return s.container.rss }

// DevMemSpore is a detached DevMem. See DevMem.Sporulate.
type DevMemSpore struct {
	spore[blob]
}

func newDevMemSpore(ctx driver.Handle, b blob) *DevMemSpore {
	s := &DevMemSpore{}
	s.container = rawContainer[blob]{ctx: ctx, rss: b}
	s.leak = newLeakTracker(s, fmt.Sprintf("DevMemSpore(%p, %s)", b.ptr, MemSize(b.len)))
	return s
}

// Sprout attaches the memory back to cur, which must be the context that allocated it.
func (s *DevMemSpore) Sprout(cur *CurrentCtx) *DevMem {
	return cur.attachDevMem(s.take(cur, true, "DevMemSpore"))
}

// SproutUnchecked is like Sprout, but it doesn't check the context.
func (s *DevMemSpore) SproutUnchecked(cur *CurrentCtx) *DevMem {
	return cur.attachDevMem(s.take(cur, false, "DevMemSpore"))
}

// OwnerContext returns the handle of the context that owns the memory.
func (s *DevMemSpore) OwnerContext() driver.Handle { return s.ownerContext() }

// Len returns the size in bytes.
func (s *DevMemSpore) Len() int { return s.container.rss.len }

// IsEmpty returns whether the memory has 0 bytes.
func (s *DevMemSpore) IsEmpty() bool { return s.container.rss.len == 0 }

// AsRaw returns the device pointer. It is nil for empty memory.
func (s *DevMemSpore) AsRaw() unsafe.Pointer { return s.container.rss.ptr }
