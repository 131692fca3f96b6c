// Package acl is a safety layer over the Ascend Computing Language (ACL) runtime.
//
// It manages devices, execution contexts, command streams, events and device memory, such that resources are only
// used while the context that created them is current:
//
//   - A Runtime is created with Init (over any driver.API) or Load (over the libascendcl.so installed in the system).
//   - A Device creates secondary contexts (Device.Context) or adopts its default one (Device.FetchDefault).
//   - Context.Apply makes the context current, calls a function with a *CurrentCtx token, and restores the previous
//     context. Every resource is created from a *CurrentCtx and is destroyed, at the latest, when the Apply
//     call that created it returns.
//   - To move a resource out of an Apply call (or to another goroutine), sporulate it: Stream.Sporulate,
//     Event.Sporulate and DevMem.Sporulate return a detached "spore", that can later sprout back in a
//     *CurrentCtx of the same context.
//
// Native failures are returned as errors (see Error), the absence of a current context is ErrNoContext, and
// programmer errors (e.g. copies between buffers of different sizes) panic.
package acl

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/gomlx/goacl/driver"
	"github.com/gomlx/goacl/driver/ascendcl"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ConfigPathEnv is the name of the environment variable with the path to the ACL JSON configuration file passed
// to aclInit. If not set, no configuration file is used.
const ConfigPathEnv = "GOACL_CONFIG_PATH"

// Runtime is an initialized ACL runtime. Create it with Init or Load, and end it with Finalize.
type Runtime struct {
	api driver.API
	reg registry

	contextsAlive, streamsAlive, eventsAlive atomic.Int64
	blocksAlive, bytesAlive                  atomic.Int64
	finalized                                atomic.Bool
}

// Init initializes the ACL runtime over the given native API.
//
// The native library can only be initialized once per process.
func Init(api driver.API) (*Runtime, error) {
	if api == nil {
		return nil, errors.New("acl.Init requires a non-nil driver.API")
	}
	configPath := os.Getenv(ConfigPathEnv)
	if err := check("aclInit", api.Init(configPath)); err != nil {
		return nil, errors.WithMessagef(err, "failed to initialize ACL (config file %q)", configPath)
	}
	klog.V(1).Infof("ACL runtime initialized (config file %q)", configPath)
	return &Runtime{api: api, reg: registry{api: api}}, nil
}

// Load loads libascendcl.so (see package driver/ascendcl for how it is searched) and initializes it.
//
// If the Ascend toolkit is not installed, the error matches ascendcl.ErrNotFound (use errors.Is), and callers
// should treat it as "no accelerator in this system".
func Load() (*Runtime, error) {
	lib, err := ascendcl.Load()
	if err != nil {
		return nil, err
	}
	return Init(lib)
}

// API returns the native API used by the runtime.
func (rt *Runtime) API() driver.API {
	return rt.api
}

// Finalize ends the ACL session. All contexts must have been destroyed before.
// It is a no-op if called more than once.
func (rt *Runtime) Finalize() error {
	if rt == nil || !rt.finalized.CompareAndSwap(false, true) {
		return nil
	}
	if stats := rt.Stats(); stats != (Stats{}) {
		klog.Warningf("ACL runtime finalized with live resources: %s", stats)
	}
	return check("aclFinalize", rt.api.Finalize())
}

// Version of the ACL runtime library.
type Version struct {
	Major, Minor, Patch int
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Version returns the version of the ACL runtime library.
func (rt *Runtime) Version() (Version, error) {
	major, minor, patch, status := rt.api.GetVersion()
	if err := check("aclrtGetVersion", status); err != nil {
		return Version{}, err
	}
	return Version{int(major), int(minor), int(patch)}, nil
}

// Stats holds the number of native resources currently owned through a Runtime.
type Stats struct {
	// Contexts counts secondary contexts only: default contexts are owned by the device.
	Contexts int64
	Streams  int64
	Events   int64
	// Blocks is the number of device memory allocations, and Bytes their total size.
	Blocks int64
	Bytes  int64
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%d contexts, %d streams, %d events, %d memory blocks (%s)",
		s.Contexts, s.Streams, s.Events, s.Blocks, MemSize(s.Bytes))
}

// Stats returns the number of native resources alive.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Contexts: rt.contextsAlive.Load(),
		Streams:  rt.streamsAlive.Load(),
		Events:   rt.eventsAlive.Load(),
		Blocks:   rt.blocksAlive.Load(),
		Bytes:    rt.bytesAlive.Load(),
	}
}
