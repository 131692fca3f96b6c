package acl

import (
	"container/list"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gomlx/goacl/driver"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context is a logical execution scope on one device: every stream, event and memory block belongs to one context,
// and can only be used while it is current.
//
// Secondary contexts (created with Device.Context) are owned and must be destroyed with Destroy.
// Primary contexts (the device default one, Device.FetchDefault) are owned by the device, and Destroy is a no-op.
type Context struct {
	rt      *Runtime
	handle  driver.Handle
	device  int
	primary bool
	leak    *leakTracker
}

// Context creates a new secondary context on the device.
//
// The current context, if any, is left unchanged. If there was no current context, the new one becomes current.
func (d Device) Context() (*Context, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prev, hadPrev, err := d.rt.reg.current()
	if err != nil {
		return nil, errors.WithMessagef(err, "creating context on %s", d)
	}
	handle, status := d.rt.api.CreateContext(int32(d.index))
	if err := check("aclrtCreateContext", status); err != nil {
		return nil, errors.WithMessagef(err, "creating context on %s", d)
	}
	ctx := &Context{rt: d.rt, handle: handle, device: d.index}
	ctx.leak = newLeakTracker(ctx, ctx.String())
	d.rt.contextsAlive.Add(1)
	klog.V(1).Infof("created %s", ctx)
	if err := d.rt.reg.restore(prev, hadPrev); err != nil {
		if destroyErr := ctx.Destroy(); destroyErr != nil {
			klog.Errorf("failed to destroy %s after failing to restore previous context: %+v", ctx, destroyErr)
		}
		return nil, errors.WithMessagef(err, "restoring context after creating context on %s", d)
	}
	return ctx, nil
}

// FetchDefault returns the default (primary) context of the device, creating it if needed.
//
// The current context, if any, is left unchanged. If there was no current context, the default one becomes current.
func (d Device) FetchDefault() (*Context, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prev, hadPrev, err := d.rt.reg.current()
	if err != nil {
		return nil, errors.WithMessagef(err, "fetching default context of %s", d)
	}
	if err := check("aclrtSetDevice", d.rt.api.SetDevice(int32(d.index))); err != nil {
		return nil, errors.WithMessagef(err, "fetching default context of %s", d)
	}
	handle, found, err := d.rt.reg.current()
	if err != nil {
		return nil, errors.WithMessagef(err, "fetching default context of %s", d)
	}
	if !found {
		return nil, errors.Errorf("no current context after aclrtSetDevice(%d)", d.index)
	}
	if err := d.rt.reg.restore(prev, hadPrev); err != nil {
		return nil, errors.WithMessagef(err, "restoring context after fetching default context of %s", d)
	}
	return &Context{rt: d.rt, handle: handle, device: d.index, primary: true}, nil
}

// String implements fmt.Stringer.
func (c *Context) String() string {
	if c == nil {
		return "Context(nil)"
	}
	kind := "Context"
	if c.primary {
		kind = "PrimaryContext"
	}
	return fmt.Sprintf("%s(Dev%d, %#x)", kind, c.device, uintptr(c.handle))
}

// IsPrimary returns whether this is the default context of the device.
func (c *Context) IsPrimary() bool { return c.primary }

// Device of the context.
func (c *Context) Device() Device { return c.rt.Device(c.device) }

// AsRaw returns the native aclrtContext handle.
//
// The handle is borrowed: it must not be used after the Context is destroyed.
func (c *Context) AsRaw() driver.Handle { return c.handle }

// Destroy the context. For primary contexts it is a no-op, since they are owned by the device.
//
// All resources created in the context must have been released before. It is a no-op if called more than once.
func (c *Context) Destroy() error {
	if c == nil || c.rt == nil || c.handle == 0 {
		// Already destroyed, no-op.
		return nil
	}
	handle := c.handle
	c.handle = 0
	if c.primary {
		return nil
	}
	c.leak.release()
	c.rt.contextsAlive.Add(-1)
	klog.V(1).Infof("destroying Context(Dev%d, %#x)", c.device, uintptr(handle))
	return check("aclrtDestroyContext", c.rt.api.DestroyContext(handle))
}

// Apply makes the context current, calls f, and then restores the previous current context.
//
// If the context is already current there is no switch. If there was no current context before, there is nothing
// to restore to, and the context remains current.
//
// The *CurrentCtx given to f is only valid during the call: any stream, event or memory block created through it
// and not explicitly destroyed or sporulated is destroyed when f returns.
//
// The goroutine is locked to its OS thread during the call, since the native current context is per-thread.
func (c *Context) Apply(f func(cur *CurrentCtx) error) (err error) {
	if c == nil || c.rt == nil || c.handle == 0 {
		return errors.New("Context is nil or it has already been destroyed")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	prev, hadPrev, err := c.rt.reg.current()
	if err != nil {
		return errors.WithMessagef(err, "Apply(%s)", c)
	}
	if hadPrev && prev == c.handle {
		return c.rt.run(c.handle, f)
	}
	if err = c.rt.reg.set(c.handle); err != nil {
		return errors.WithMessagef(err, "Apply(%s)", c)
	}
	defer func() {
		restoreErr := c.rt.reg.restore(prev, hadPrev)
		if restoreErr == nil {
			return
		}
		if err == nil {
			err = errors.WithMessagef(restoreErr, "Apply(%s) failed to restore previous context %#x", c, uintptr(prev))
		} else {
			klog.Errorf("Apply(%s) failed to restore previous context %#x: %+v", c, uintptr(prev), restoreErr)
		}
	}()
	return c.rt.run(c.handle, f)
}

// ApplyCurrent calls f with the current context. It returns ErrNoContext if there is no current context.
func (rt *Runtime) ApplyCurrent(f func(cur *CurrentCtx) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	raw, found, err := rt.reg.current()
	if err != nil {
		return err
	}
	if !found {
		return errors.WithStack(ErrNoContext)
	}
	return rt.run(raw, f)
}

// ApplyCurrentUnchecked calls f with raw taken as the current context, without checking it.
//
// The caller guarantees raw is the current context of the calling thread (and that the goroutine is locked
// to its thread), for instance from within native callbacks.
func (rt *Runtime) ApplyCurrentUnchecked(raw driver.Handle, f func(cur *CurrentCtx) error) error {
	return rt.run(raw, f)
}

// run calls f with a new CurrentCtx, and releases the resources left attached to it at the end.
func (rt *Runtime) run(raw driver.Handle, f func(cur *CurrentCtx) error) (err error) {
	cur := &CurrentCtx{rt: rt, raw: raw}
	cur.active.Store(true)
	defer func() {
		cur.active.Store(false)
		releaseErr := cur.releaseAll()
		if releaseErr == nil {
			return
		}
		if err == nil {
			err = releaseErr
		} else {
			klog.Errorf("failed to release resources of context %#x: %+v", uintptr(raw), releaseErr)
		}
	}()
	return f(cur)
}

// CurrentCtx is the proof that a context is current: it is given to the function passed to Context.Apply,
// Runtime.ApplyCurrent or Runtime.ApplyCurrentUnchecked, and it is only valid during that call.
type CurrentCtx struct {
	rt     *Runtime
	raw    driver.Handle
	active atomic.Bool

	// Resources attached to this CurrentCtx, released when the scope ends. Resources remove themselves when
	// destroyed or sporulated.
	streams, others list.List
}

// attachment is the entry of a resource in the lists of its CurrentCtx.
type attachment struct {
	list *list.List
	elem *list.Element
}

func attach(l *list.List, r interface{ Destroy() error }) attachment {
	return attachment{list: l, elem: l.PushBack(r)}
}

// detach removes the resource from its CurrentCtx. It is a no-op if already detached.
func (a *attachment) detach() {
	if a.elem != nil {
		a.list.Remove(a.elem)
		a.elem = nil
	}
}

// AsRaw returns the native handle of the current context.
func (cur *CurrentCtx) AsRaw() driver.Handle { return cur.raw }

// Runtime returns the runtime the context belongs to.
func (cur *CurrentCtx) Runtime() *Runtime { return cur.rt }

// checkActive returns an error if the CurrentCtx is used outside the call that created it.
func (cur *CurrentCtx) checkActive(op string) error {
	if cur == nil || !cur.active.Load() {
		return errors.Errorf("%s: CurrentCtx used outside of the Apply call that created it", op)
	}
	return nil
}

// mustBeActive is like checkActive, but it panics.
func (cur *CurrentCtx) mustBeActive(op string) {
	if err := cur.checkActive(op); err != nil {
		panic(err)
	}
}

// Device returns the device of the current context.
func (cur *CurrentCtx) Device() (Device, error) {
	if err := cur.checkActive("CurrentCtx.Device"); err != nil {
		return Device{}, err
	}
	index, status := cur.rt.api.GetDevice()
	if err := check("aclrtGetDevice", status); err != nil {
		return Device{}, err
	}
	return cur.rt.Device(int(index)), nil
}

// SyncDevice blocks until all the work of all contexts of the device is finished.
func (cur *CurrentCtx) SyncDevice() error {
	if err := cur.checkActive("CurrentCtx.SyncDevice"); err != nil {
		return err
	}
	return check("aclrtSynchronizeDevice", cur.rt.api.SynchronizeDevice())
}

// releaseAll destroys the resources still attached: streams first, so their pending work is finished
// before any memory is freed, then everything else in reverse order of creation.
func (cur *CurrentCtx) releaseAll() error {
	var firstErr error
	note := func(err error) {
		if err == nil {
			return
		}
		if firstErr == nil {
			firstErr = err
		} else {
			klog.Errorf("failed to release resource: %+v", err)
		}
	}
	for _, l := range []*list.List{&cur.streams, &cur.others} {
		for e := l.Back(); e != nil; {
			prev := e.Prev()
			note(e.Value.(interface{ Destroy() error }).Destroy())
			e = prev
		}
		// Whatever failed to be destroyed is dropped.
		for e := l.Front(); e != nil; e = l.Front() {
			l.Remove(e)
		}
	}
	return firstErr
}
