package sim

import (
	"time"
	"unsafe"

	"github.com/gomlx/goacl/driver"
)

// block is a simulated device allocation.
type block struct {
	ctx  driver.Handle
	data []byte
}

// Malloc implements driver.API. It requires a current context, and size must be > 0.
func (d *Driver) Malloc(size uintptr, policy driver.MallocPolicy) (unsafe.Pointer, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkCurrent(); !status.Ok() {
		return nil, status
	}
	if size == 0 || policy < driver.MallocHugeFirst || policy > driver.MallocNormal {
		return nil, driver.ErrorInvalidParam
	}
	data := make([]byte, size)
	ptr := unsafe.Pointer(&data[0])
	d.blocks[uintptr(ptr)] = &block{ctx: d.current, data: data}
	return ptr, driver.Success
}

// Free implements driver.API. ptr must be the start of an allocation.
func (d *Driver) Free(ptr unsafe.Pointer) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return status
	}
	if _, found := d.blocks[uintptr(ptr)]; !found {
		return driver.ErrorRtParamInvalid
	}
	delete(d.blocks, uintptr(ptr))
	return driver.Success
}

// deviceBytes returns the device memory in [ptr, ptr+count), which must lie within one allocation.
func (d *Driver) deviceBytes(ptr unsafe.Pointer, count uintptr) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := uintptr(ptr)
	for base, b := range d.blocks {
		if addr >= base && addr+count <= base+uintptr(len(b.data)) {
			offset := addr - base
			return b.data[offset : offset+count], true
		}
	}
	return nil, false
}

func hostBytes(ptr unsafe.Pointer, count uintptr) ([]byte, bool) {
	if ptr == nil {
		return nil, false
	}
	return unsafe.Slice((*byte)(ptr), count), true
}

// resolve returns the destination and source byte slices of a copy.
func (d *Driver) resolve(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind driver.MemcpyKind) (to, from []byte, status driver.Status) {
	if status = d.checkInitLocked(); !status.Ok() {
		return
	}
	if count > dstMax || !kind.IsAMemcpyKind() {
		return nil, nil, driver.ErrorInvalidParam
	}
	dstOnDevice := kind == driver.HostToDevice || kind == driver.DeviceToDevice
	srcOnDevice := kind == driver.DeviceToHost || kind == driver.DeviceToDevice
	var ok bool
	if dstOnDevice {
		to, ok = d.deviceBytes(dst, count)
	} else {
		to, ok = hostBytes(dst, count)
	}
	if !ok {
		return nil, nil, driver.ErrorRtParamInvalid
	}
	if srcOnDevice {
		from, ok = d.deviceBytes(src, count)
	} else {
		from, ok = hostBytes(src, count)
	}
	if !ok {
		return nil, nil, driver.ErrorRtParamInvalid
	}
	return to, from, driver.Success
}

func (d *Driver) checkInitLocked() driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkInit()
}

// Memcpy implements driver.API.
func (d *Driver) Memcpy(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind driver.MemcpyKind) driver.Status {
	if count == 0 {
		return d.checkInitLocked()
	}
	to, from, status := d.resolve(dst, dstMax, src, count, kind)
	if !status.Ok() {
		return status
	}
	copy(to, from)
	return driver.Success
}

// MemcpyAsync implements driver.API. The copy is executed by the stream, after the configured latency.
func (d *Driver) MemcpyAsync(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind driver.MemcpyKind, stream driver.Handle) driver.Status {
	s, status := d.getStream(stream)
	if !status.Ok() {
		return status
	}
	if count == 0 {
		return driver.Success
	}
	to, from, status := d.resolve(dst, dstMax, src, count, kind)
	if !status.Ok() {
		return status
	}
	latency := d.cfg.copyLatency
	if !s.enqueue(func() {
		if latency > 0 {
			time.Sleep(latency)
		}
		copy(to, from)
	}) {
		return driver.ErrorRtParamInvalid
	}
	return driver.Success
}
