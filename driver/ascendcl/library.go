package ascendcl

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/gomlx/goacl/driver"
)

// Library is the loaded libascendcl.so. It implements driver.API.
//
// The function fields are bound to the library symbols when it is loaded. Every aclError is an int32,
// and every handle (aclrtContext, aclrtStream, aclrtEvent) a pointer-sized integer.
type Library struct {
	path string

	aclInit                func(configPath unsafe.Pointer) int32
	aclFinalize            func() int32
	aclrtGetVersion        func(major, minor, patch *int32) int32
	aclrtGetDeviceCount    func(count *uint32) int32
	aclrtSetDevice         func(deviceID int32) int32
	aclrtGetDevice         func(deviceID *int32) int32
	aclrtSynchronizeDevice func() int32
	aclGetDeviceCapability func(deviceID uint32, infoType int32, value *int64) int32
	aclrtGetSocName        func() string

	aclrtCreateContext     func(ctx *uintptr, deviceID int32) int32
	aclrtDestroyContext    func(ctx uintptr) int32
	aclrtGetCurrentContext func(ctx *uintptr) int32
	aclrtSetCurrentContext func(ctx uintptr) int32

	aclrtCreateStream      func(stream *uintptr) int32
	aclrtDestroyStream     func(stream uintptr) int32
	aclrtSynchronizeStream func(stream uintptr) int32
	aclrtStreamQuery       func(stream uintptr, status *int32) int32
	aclrtStreamWaitEvent   func(stream, event uintptr) int32

	aclrtCreateEvent      func(event *uintptr) int32
	aclrtDestroyEvent     func(event uintptr) int32
	aclrtRecordEvent      func(event, stream uintptr) int32
	aclrtSynchronizeEvent func(event uintptr) int32
	aclrtEventElapsedTime func(ms *float32, start, end uintptr) int32

	aclrtMalloc      func(devPtr *unsafe.Pointer, size uintptr, policy int32) int32
	aclrtFree        func(devPtr unsafe.Pointer) int32
	aclrtMemcpy      func(dst unsafe.Pointer, destMax uintptr, src unsafe.Pointer, count uintptr, kind int32) int32
	aclrtMemcpyAsync func(dst unsafe.Pointer, destMax uintptr, src unsafe.Pointer, count uintptr, kind int32, stream uintptr) int32
}

var _ driver.API = (*Library)(nil)

// symbols lists the functions bound when loading the library, by name.
func (l *Library) symbols() map[string]any {
	return map[string]any{
		"aclInit":                &l.aclInit,
		"aclFinalize":            &l.aclFinalize,
		"aclrtGetVersion":        &l.aclrtGetVersion,
		"aclrtGetDeviceCount":    &l.aclrtGetDeviceCount,
		"aclrtSetDevice":         &l.aclrtSetDevice,
		"aclrtGetDevice":         &l.aclrtGetDevice,
		"aclrtSynchronizeDevice": &l.aclrtSynchronizeDevice,
		"aclGetDeviceCapability": &l.aclGetDeviceCapability,
		"aclrtGetSocName":        &l.aclrtGetSocName,
		"aclrtCreateContext":     &l.aclrtCreateContext,
		"aclrtDestroyContext":    &l.aclrtDestroyContext,
		"aclrtGetCurrentContext": &l.aclrtGetCurrentContext,
		"aclrtSetCurrentContext": &l.aclrtSetCurrentContext,
		"aclrtCreateStream":      &l.aclrtCreateStream,
		"aclrtDestroyStream":     &l.aclrtDestroyStream,
		"aclrtSynchronizeStream": &l.aclrtSynchronizeStream,
		"aclrtStreamQuery":       &l.aclrtStreamQuery,
		"aclrtStreamWaitEvent":   &l.aclrtStreamWaitEvent,
		"aclrtCreateEvent":       &l.aclrtCreateEvent,
		"aclrtDestroyEvent":      &l.aclrtDestroyEvent,
		"aclrtRecordEvent":       &l.aclrtRecordEvent,
		"aclrtSynchronizeEvent":  &l.aclrtSynchronizeEvent,
		"aclrtEventElapsedTime":  &l.aclrtEventElapsedTime,
		"aclrtMalloc":            &l.aclrtMalloc,
		"aclrtFree":              &l.aclrtFree,
		"aclrtMemcpy":            &l.aclrtMemcpy,
		"aclrtMemcpyAsync":       &l.aclrtMemcpyAsync,
	}
}

// Path of the loaded library.
func (l *Library) Path() string { return l.path }

// String implements fmt.Stringer.
func (l *Library) String() string { return fmt.Sprintf("ACL library %q", l.path) }

// Init implements driver.API.
func (l *Library) Init(configPath string) driver.Status {
	if configPath == "" {
		return driver.Status(l.aclInit(nil))
	}
	cPath := append([]byte(configPath), 0)
	defer runtime.KeepAlive(cPath)
	return driver.Status(l.aclInit(unsafe.Pointer(&cPath[0])))
}

// Finalize implements driver.API.
func (l *Library) Finalize() driver.Status { return driver.Status(l.aclFinalize()) }

// GetVersion implements driver.API.
func (l *Library) GetVersion() (major, minor, patch int32, status driver.Status) {
	status = driver.Status(l.aclrtGetVersion(&major, &minor, &patch))
	return
}

// GetDeviceCount implements driver.API.
func (l *Library) GetDeviceCount() (count uint32, status driver.Status) {
	status = driver.Status(l.aclrtGetDeviceCount(&count))
	return
}

// SetDevice implements driver.API.
func (l *Library) SetDevice(deviceID int32) driver.Status {
	return driver.Status(l.aclrtSetDevice(deviceID))
}

// GetDevice implements driver.API.
func (l *Library) GetDevice() (deviceID int32, status driver.Status) {
	status = driver.Status(l.aclrtGetDevice(&deviceID))
	return
}

// SynchronizeDevice implements driver.API.
func (l *Library) SynchronizeDevice() driver.Status {
	return driver.Status(l.aclrtSynchronizeDevice())
}

// GetDeviceCapability implements driver.API.
func (l *Library) GetDeviceCapability(deviceID uint32, info driver.DeviceInfo) (value int64, status driver.Status) {
	status = driver.Status(l.aclGetDeviceCapability(deviceID, int32(info), &value))
	return
}

// GetSocName implements driver.API.
func (l *Library) GetSocName() string { return l.aclrtGetSocName() }

// CreateContext implements driver.API.
func (l *Library) CreateContext(deviceID int32) (driver.Handle, driver.Status) {
	var ctx uintptr
	status := driver.Status(l.aclrtCreateContext(&ctx, deviceID))
	return driver.Handle(ctx), status
}

// DestroyContext implements driver.API.
func (l *Library) DestroyContext(ctx driver.Handle) driver.Status {
	return driver.Status(l.aclrtDestroyContext(uintptr(ctx)))
}

// GetCurrentContext implements driver.API.
func (l *Library) GetCurrentContext() (driver.Handle, driver.Status) {
	var ctx uintptr
	status := driver.Status(l.aclrtGetCurrentContext(&ctx))
	return driver.Handle(ctx), status
}

// SetCurrentContext implements driver.API.
func (l *Library) SetCurrentContext(ctx driver.Handle) driver.Status {
	return driver.Status(l.aclrtSetCurrentContext(uintptr(ctx)))
}

// CreateStream implements driver.API.
func (l *Library) CreateStream() (driver.Handle, driver.Status) {
	var stream uintptr
	status := driver.Status(l.aclrtCreateStream(&stream))
	return driver.Handle(stream), status
}

// DestroyStream implements driver.API.
func (l *Library) DestroyStream(stream driver.Handle) driver.Status {
	return driver.Status(l.aclrtDestroyStream(uintptr(stream)))
}

// SynchronizeStream implements driver.API.
func (l *Library) SynchronizeStream(stream driver.Handle) driver.Status {
	return driver.Status(l.aclrtSynchronizeStream(uintptr(stream)))
}

// StreamQuery implements driver.API.
func (l *Library) StreamQuery(stream driver.Handle) (driver.StreamStatus, driver.Status) {
	streamStatus := int32(driver.StreamReserved)
	status := driver.Status(l.aclrtStreamQuery(uintptr(stream), &streamStatus))
	return driver.StreamStatus(streamStatus), status
}

// StreamWaitEvent implements driver.API.
func (l *Library) StreamWaitEvent(stream, event driver.Handle) driver.Status {
	return driver.Status(l.aclrtStreamWaitEvent(uintptr(stream), uintptr(event)))
}

// CreateEvent implements driver.API.
func (l *Library) CreateEvent() (driver.Handle, driver.Status) {
	var event uintptr
	status := driver.Status(l.aclrtCreateEvent(&event))
	return driver.Handle(event), status
}

// DestroyEvent implements driver.API.
func (l *Library) DestroyEvent(event driver.Handle) driver.Status {
	return driver.Status(l.aclrtDestroyEvent(uintptr(event)))
}

// RecordEvent implements driver.API.
func (l *Library) RecordEvent(event, stream driver.Handle) driver.Status {
	return driver.Status(l.aclrtRecordEvent(uintptr(event), uintptr(stream)))
}

// SynchronizeEvent implements driver.API.
func (l *Library) SynchronizeEvent(event driver.Handle) driver.Status {
	return driver.Status(l.aclrtSynchronizeEvent(uintptr(event)))
}

// EventElapsedTime implements driver.API.
func (l *Library) EventElapsedTime(start, end driver.Handle) (ms float32, status driver.Status) {
	status = driver.Status(l.aclrtEventElapsedTime(&ms, uintptr(start), uintptr(end)))
	return
}

// Malloc implements driver.API.
func (l *Library) Malloc(size uintptr, policy driver.MallocPolicy) (ptr unsafe.Pointer, status driver.Status) {
	status = driver.Status(l.aclrtMalloc(&ptr, size, int32(policy)))
	return
}

// Free implements driver.API.
func (l *Library) Free(ptr unsafe.Pointer) driver.Status {
	return driver.Status(l.aclrtFree(ptr))
}

// Memcpy implements driver.API.
func (l *Library) Memcpy(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind driver.MemcpyKind) driver.Status {
	return driver.Status(l.aclrtMemcpy(dst, dstMax, src, count, int32(kind)))
}

// MemcpyAsync implements driver.API.
func (l *Library) MemcpyAsync(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind driver.MemcpyKind, stream driver.Handle) driver.Status {
	return driver.Status(l.aclrtMemcpyAsync(dst, dstMax, src, count, int32(kind), uintptr(stream)))
}
