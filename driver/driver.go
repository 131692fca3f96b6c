// Package driver defines the native call surface of the Ascend Computing Language (ACL) runtime, as consumed by
// the goacl packages.
//
// The surface is a Go interface, API, so the same safety layer (package acl) can run on top of the real
// libascendcl.so (package driver/ascendcl) or on top of a simulated accelerator (package driver/sim).
//
// Every method mirrors one `aclrt*`/`acl*` C function and returns the raw Status code: interpretation of the codes
// is left to the caller.
package driver

import "unsafe"

// Handle is an opaque native handle: aclrtContext, aclrtStream or aclrtEvent.
// The zero value is the null handle.
type Handle uintptr

// API is the set of native ACL runtime functions used by goacl.
//
// Implementations must be safe for concurrent use: synchronization of the native "current context" slot is
// the native layer's responsibility (it is per-thread in libascendcl).
type API interface {
	// Init is aclInit. configPath may be empty, in which case no configuration file is used.
	Init(configPath string) Status
	// Finalize is aclFinalize.
	Finalize() Status
	// GetVersion is aclrtGetVersion.
	GetVersion() (major, minor, patch int32, status Status)

	GetDeviceCount() (uint32, Status)
	// SetDevice is aclrtSetDevice: it activates the device, creating its default context if needed, and makes
	// the default context current.
	SetDevice(deviceID int32) Status
	// GetDevice returns the device of the current context.
	GetDevice() (int32, Status)
	// SynchronizeDevice waits for all the work of all contexts of the current device.
	SynchronizeDevice() Status
	GetDeviceCapability(deviceID uint32, info DeviceInfo) (int64, Status)
	// GetSocName is aclrtGetSocName. It returns an empty string if it is not available.
	GetSocName() string

	// CreateContext creates a new context on the device and makes it current.
	CreateContext(deviceID int32) (Handle, Status)
	DestroyContext(ctx Handle) Status
	GetCurrentContext() (Handle, Status)
	SetCurrentContext(ctx Handle) Status

	CreateStream() (Handle, Status)
	DestroyStream(stream Handle) Status
	SynchronizeStream(stream Handle) Status
	StreamQuery(stream Handle) (StreamStatus, Status)
	StreamWaitEvent(stream, event Handle) Status

	CreateEvent() (Handle, Status)
	DestroyEvent(event Handle) Status
	RecordEvent(event, stream Handle) Status
	SynchronizeEvent(event Handle) Status
	// EventElapsedTime returns the time in milliseconds between the start and end events.
	EventElapsedTime(start, end Handle) (float32, Status)

	Malloc(size uintptr, policy MallocPolicy) (unsafe.Pointer, Status)
	Free(ptr unsafe.Pointer) Status
	Memcpy(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind MemcpyKind) Status
	MemcpyAsync(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind MemcpyKind, stream Handle) Status
}
