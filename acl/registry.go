package acl

import "github.com/gomlx/goacl/driver"

// registry is the only place that touches the native "current context" slot.
//
// The slot is per OS thread in libascendcl: callers must keep the goroutine locked to its thread
// (runtime.LockOSThread) across a get/set/restore sequence.
type registry struct {
	api driver.API
}

// current returns the current context, or found=false if there is none.
func (r registry) current() (ctx driver.Handle, found bool, err error) {
	ctx, status := r.api.GetCurrentContext()
	switch status {
	case driver.Success:
		return ctx, true, nil
	case driver.ErrorRtContextNull:
		return 0, false, nil
	}
	return 0, false, check("aclrtGetCurrentContext", status)
}

func (r registry) set(ctx driver.Handle) error {
	return check("aclrtSetCurrentContext", r.api.SetCurrentContext(ctx))
}

// restore sets prev back as current, if there was one: there is no way to go back to "no current context".
func (r registry) restore(prev driver.Handle, hadPrev bool) error {
	if !hadPrev {
		return nil
	}
	return r.set(prev)
}
