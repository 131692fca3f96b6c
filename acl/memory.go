package acl

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/gomlx/goacl/driver"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Element is the set of host types that can be copied to and from device memory.
type Element interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr |
		~float32 | ~float64 | ~complex64 | ~complex128
}

// blob describes one device allocation: len is its exact size in bytes, and ptr is nil if len is 0.
type blob struct {
	ptr unsafe.Pointer
	len int
}

// DevMem is a block of device memory.
//
// It is attached to the CurrentCtx that allocated it, and it is freed when that scope ends, unless it is
// destroyed or sporulated before.
type DevMem struct {
	cur   *CurrentCtx
	blob  blob
	valid bool
	att   attachment
}

// byteLen returns the size in bytes of an array of n elements of type T.
func byteLen[T Element](n int) (int, error) {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if n < 0 || n > math.MaxInt/elemSize {
		return 0, errors.Errorf("invalid size for device memory: %d elements of %d bytes", n, elemSize)
	}
	return n * elemSize, nil
}

func hostBytes[T Element](src []T) (unsafe.Pointer, int) {
	var zero T
	return unsafe.Pointer(unsafe.SliceData(src)), len(src) * int(unsafe.Sizeof(zero))
}

// Malloc allocates device memory for n elements of type T, in the current context.
// Zero elements is valid, and no device memory is actually allocated.
func Malloc[T Element](cur *CurrentCtx, n int) (*DevMem, error) {
	size, err := byteLen[T](n)
	if err != nil {
		return nil, err
	}
	return cur.MallocBytes(size)
}

// MallocBytes allocates size bytes of device memory in the current context.
func (cur *CurrentCtx) MallocBytes(size int) (*DevMem, error) {
	if err := cur.checkActive("CurrentCtx.MallocBytes"); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, errors.Errorf("invalid size for device memory: %d bytes", size)
	}
	if size == 0 {
		return cur.attachDevMem(blob{}), nil
	}
	ptr, status := cur.rt.api.Malloc(uintptr(size), driver.MallocHugeFirst)
	if err := check("aclrtMalloc", status); err != nil {
		return nil, errors.WithMessagef(err, "allocating %s of device memory", MemSize(size))
	}
	cur.rt.blocksAlive.Add(1)
	cur.rt.bytesAlive.Add(int64(size))
	klog.V(2).Infof("allocated %s of device memory at %p", MemSize(size), ptr)
	return cur.attachDevMem(blob{ptr: ptr, len: size}), nil
}

// FromHost allocates device memory with the size of src, and synchronously copies src to it.
func FromHost[T Element](cur *CurrentCtx, src []T) (*DevMem, error) {
	_, size := hostBytes(src)
	mem, err := cur.MallocBytes(size)
	if err != nil {
		return nil, err
	}
	if err := MemcpyH2D(mem.Bytes(), src); err != nil {
		destroyOrLog(mem)
		return nil, err
	}
	return mem, nil
}

// WrapDevMem takes ownership of native device memory of size bytes, which must have been allocated in the
// current context. It panics if size is negative.
func (cur *CurrentCtx) WrapDevMem(ptr unsafe.Pointer, size int) *DevMem {
	cur.mustBeActive("CurrentCtx.WrapDevMem")
	if size < 0 {
		panicf("CurrentCtx.WrapDevMem: invalid size %d", size)
	}
	if size > 0 {
		cur.rt.blocksAlive.Add(1)
		cur.rt.bytesAlive.Add(int64(size))
	} else {
		ptr = nil
	}
	return cur.attachDevMem(blob{ptr: ptr, len: size})
}

func (cur *CurrentCtx) attachDevMem(b blob) *DevMem {
	m := &DevMem{cur: cur, blob: b, valid: true}
	m.att = attach(&cur.others, m)
	return m
}

// String implements fmt.Stringer.
func (m *DevMem) String() string {
	if m == nil {
		return "DevMem(nil)"
	}
	return fmt.Sprintf("DevMem(%p, %s)", m.blob.ptr, MemSize(m.blob.len))
}

// Len returns the size in bytes.
func (m *DevMem) Len() int { return m.blob.len }

// IsEmpty returns whether the memory has 0 bytes.
func (m *DevMem) IsEmpty() bool { return m.blob.len == 0 }

// AsRaw returns the device pointer (nil for empty memory). It must not be used after the memory is freed.
func (m *DevMem) AsRaw() unsafe.Pointer { return m.blob.ptr }

// Bytes returns a view of the whole memory, to be used in copies. It is empty for 0 bytes.
//
// It panics if the memory was already freed or sporulated. Views outlive neither: copies through a view of
// freed or sporulated memory panic.
func (m *DevMem) Bytes() DevSlice {
	if m == nil || !m.valid {
		panicf("DevMem is nil, or it has been destroyed or sporulated already")
	}
	return DevSlice{mem: m, ptr: m.blob.ptr, len: m.blob.len}
}

// Sporulate detaches the memory from its CurrentCtx: the returned spore owns the device memory, and this DevMem
// becomes invalid.
func (m *DevMem) Sporulate() *DevMemSpore {
	if m == nil || !m.valid {
		panicf("DevMem is nil, or it has been destroyed or sporulated already")
	}
	sp := newDevMemSpore(m.cur.raw, m.blob)
	m.valid = false
	m.att.detach()
	return sp
}

// Destroy frees the device memory. Asynchronous copies still using it must be finished before.
// It is a no-op if the memory was already freed or sporulated.
func (m *DevMem) Destroy() error {
	if m == nil || m.cur == nil || !m.valid {
		// Already destroyed, no-op.
		return nil
	}
	m.valid = false
	m.att.detach()
	if m.blob.len == 0 {
		return nil
	}
	m.cur.rt.blocksAlive.Add(-1)
	m.cur.rt.bytesAlive.Add(-int64(m.blob.len))
	return check("aclrtFree", m.cur.rt.api.Free(m.blob.ptr))
}

// DevSlice is a view of a range of device memory. It can't be accessed from the host, only copied.
//
// It is only usable while the DevMem it was taken from is valid.
type DevSlice struct {
	mem *DevMem
	ptr unsafe.Pointer
	len int
}

// api returns the native API to copy through the view. It panics if the memory of the view was freed or
// sporulated.
func (s DevSlice) api(op string) driver.API {
	if s.mem == nil || !s.mem.valid {
		panicf("%s: device memory of the view has been destroyed or sporulated already", op)
	}
	return s.mem.cur.rt.api
}

// Len returns the size of the view in bytes.
func (s DevSlice) Len() int { return s.len }

// IsEmpty returns whether the view has 0 bytes.
func (s DevSlice) IsEmpty() bool { return s.len == 0 }

// AsRaw returns the device pointer to the start of the view, or nil if it is empty.
func (s DevSlice) AsRaw() unsafe.Pointer { return s.ptr }

// Slice returns the view of the bytes [from, to). It panics if the range is out of bounds.
func (s DevSlice) Slice(from, to int) DevSlice {
	if from < 0 || to < from || to > s.len {
		panicf("DevSlice.Slice(%d, %d) out of bounds for %d bytes", from, to, s.len)
	}
	if from == to {
		return DevSlice{mem: s.mem}
	}
	return DevSlice{mem: s.mem, ptr: unsafe.Add(s.ptr, from), len: to - from}
}

func checkSameLen(op string, dstLen, srcLen int) {
	if dstLen != srcLen {
		panicf("%s: destination has %d bytes, but source has %d bytes", op, dstLen, srcLen)
	}
}

// MemcpyH2D copies src from the host to dst on the device, synchronously.
// It panics if dst and src don't have exactly the same size in bytes, or if the memory of dst was freed.
func MemcpyH2D[T Element](dst DevSlice, src []T) error {
	api := dst.api("MemcpyH2D")
	srcPtr, size := hostBytes(src)
	checkSameLen("MemcpyH2D", dst.len, size)
	if size == 0 {
		return nil
	}
	defer runtime.KeepAlive(src)
	return check("aclrtMemcpy", api.Memcpy(dst.ptr, uintptr(size), srcPtr, uintptr(size), driver.HostToDevice))
}

// MemcpyD2H copies src from the device to dst on the host, synchronously.
// It panics if dst and src don't have exactly the same size in bytes.
func MemcpyD2H[T Element](dst []T, src DevSlice) error {
	api := src.api("MemcpyD2H")
	dstPtr, size := hostBytes(dst)
	checkSameLen("MemcpyD2H", size, src.len)
	if size == 0 {
		return nil
	}
	defer runtime.KeepAlive(dst)
	return check("aclrtMemcpy", api.Memcpy(dstPtr, uintptr(size), src.ptr, uintptr(size), driver.DeviceToHost))
}

// MemcpyD2D copies src to dst, both on the device, synchronously.
// It panics if dst and src don't have exactly the same size in bytes.
func MemcpyD2D(dst, src DevSlice) error {
	api := dst.api("MemcpyD2D")
	src.api("MemcpyD2D")
	checkSameLen("MemcpyD2D", dst.len, src.len)
	if dst.len == 0 {
		return nil
	}
	return check("aclrtMemcpy", api.Memcpy(dst.ptr, uintptr(dst.len), src.ptr, uintptr(src.len), driver.DeviceToDevice))
}

// MemcpyH2DAsync submits a copy of src from the host to dst on the device, ordered on the stream.
//
// The copy is only guaranteed to be finished after the stream (or an event recorded after it) is synchronized,
// and src must be kept alive and unchanged until then.
// It panics if dst and src don't have exactly the same size in bytes.
func MemcpyH2DAsync[T Element](s *Stream, dst DevSlice, src []T) error {
	dst.api("MemcpyH2DAsync")
	srcPtr, size := hostBytes(src)
	checkSameLen("MemcpyH2DAsync", dst.len, size)
	if err := s.check(); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	return check("aclrtMemcpyAsync", s.cur.rt.api.MemcpyAsync(dst.ptr, uintptr(size), srcPtr, uintptr(size), driver.HostToDevice, s.handle))
}

// MemcpyD2D submits a copy of src to dst, both on the device, ordered on the stream.
// It panics if dst and src don't have exactly the same size in bytes.
func (s *Stream) MemcpyD2D(dst, src DevSlice) error {
	dst.api("Stream.MemcpyD2D")
	src.api("Stream.MemcpyD2D")
	checkSameLen("Stream.MemcpyD2D", dst.len, src.len)
	if err := s.check(); err != nil {
		return err
	}
	if dst.len == 0 {
		return nil
	}
	return check("aclrtMemcpyAsync", s.cur.rt.api.MemcpyAsync(dst.ptr, uintptr(dst.len), src.ptr, uintptr(src.len), driver.DeviceToDevice, s.handle))
}
