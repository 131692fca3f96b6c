package driver

// MemcpyKind is the direction of a memory copy (aclrtMemcpyKind).
type MemcpyKind int32

//go:generate go tool enumer -type=MemcpyKind enums.go

const (
	HostToHost MemcpyKind = iota
	HostToDevice
	DeviceToHost
	DeviceToDevice
)

// StreamStatus is the result of StreamQuery (aclrtStreamStatus).
type StreamStatus int32

const (
	StreamComplete StreamStatus = 0
	StreamNotReady StreamStatus = 1
	// StreamReserved is never a valid answer from the runtime.
	StreamReserved StreamStatus = 0xFFFF
)

// DeviceInfo selects the capability returned by GetDeviceCapability (aclDeviceInfo).
type DeviceInfo int32

const (
	AICoreNum     DeviceInfo = 0
	VectorCoreNum DeviceInfo = 1
	L2Size        DeviceInfo = 2
)

// MallocPolicy is the aclrtMemMallocPolicy.
type MallocPolicy int32

const (
	// MallocHugeFirst allocates huge pages first, falling back to normal pages.
	MallocHugeFirst MallocPolicy = 0
	MallocHugeOnly  MallocPolicy = 1
	MallocNormal    MallocPolicy = 2
)
