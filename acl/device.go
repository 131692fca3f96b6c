package acl

import (
	"fmt"
	"math/bits"

	"github.com/gomlx/goacl/driver"
	"github.com/pkg/errors"
)

// Device is a reference to one accelerator visible to the process. It is a value type, and it doesn't own anything.
type Device struct {
	rt    *Runtime
	index int
}

// DeviceCount returns the number of accelerators visible to the process. 0 is valid: there are no accelerators.
func (rt *Runtime) DeviceCount() (int, error) {
	count, status := rt.api.GetDeviceCount()
	if err := check("aclrtGetDeviceCount", status); err != nil {
		return 0, err
	}
	return int(count), nil
}

// Device returns a reference to the device with the given index.
// The index is not validated: an invalid one will fail on first use.
func (rt *Runtime) Device(index int) Device {
	return Device{rt: rt, index: index}
}

// FetchDevice returns the first device, if there is any.
func (rt *Runtime) FetchDevice() (dev Device, found bool, err error) {
	count, err := rt.DeviceCount()
	if err != nil || count == 0 {
		return
	}
	return rt.Device(0), true, nil
}

// Index of the device.
func (d Device) Index() int { return d.index }

// String implements fmt.Stringer.
func (d Device) String() string {
	return fmt.Sprintf("Dev%d", d.index)
}

// Name returns the name of the System-on-Chip (e.g.: "Ascend910B1").
func (d Device) Name() (string, error) {
	name := d.rt.api.GetSocName()
	if name == "" {
		return "", errors.Errorf("aclrtGetSocName failed for %s", d)
	}
	return name, nil
}

func (d Device) capability(info driver.DeviceInfo) (int64, error) {
	value, status := d.rt.api.GetDeviceCapability(uint32(d.index), info)
	if err := check("aclGetDeviceCapability", status); err != nil {
		return 0, errors.WithMessagef(err, "querying %s", d)
	}
	return value, nil
}

// AICore returns the number of AI cores (cube units) of the device.
func (d Device) AICore() (int, error) {
	n, err := d.capability(driver.AICoreNum)
	return int(n), err
}

// VectorCore returns the number of vector cores of the device.
func (d Device) VectorCore() (int, error) {
	n, err := d.capability(driver.VectorCoreNum)
	return int(n), err
}

// L2Cache returns the size of the L2 cache of the device.
func (d Device) L2Cache() (MemSize, error) {
	n, err := d.capability(driver.L2Size)
	return MemSize(n), err
}

// Info is a summary of the capabilities of a device.
type Info struct {
	Index      int
	Name       string
	AICore     int
	VectorCore int
	L2Cache    MemSize
}

// Info queries all the capabilities of the device.
func (d Device) Info() (info Info, err error) {
	info.Index = d.index
	if info.Name, err = d.Name(); err != nil {
		return
	}
	if info.AICore, err = d.AICore(); err != nil {
		return
	}
	if info.VectorCore, err = d.VectorCore(); err != nil {
		return
	}
	info.L2Cache, err = d.L2Cache()
	return
}

// String prints the device summary in multiple lines.
func (info Info) String() string {
	return fmt.Sprintf("Dev%d: %s\n  AI Core: %d\n  Vector Core: %d\n  L2 Cache: %s\n",
		info.Index, info.Name, info.AICore, info.VectorCore, info.L2Cache)
}

// MemSize is a number of bytes, printed with the largest binary unit that divides it exactly.
type MemSize uint64

// String implements fmt.Stringer. E.g.: "0", "12B", "3KiB", "192MiB", "64GiB".
func (m MemSize) String() string {
	if m == 0 {
		return "0"
	}
	zeros := bits.TrailingZeros64(uint64(m))
	switch {
	case zeros >= 40:
		return fmt.Sprintf("%dTiB", uint64(m>>40))
	case zeros >= 30:
		return fmt.Sprintf("%dGiB", uint64(m>>30))
	case zeros >= 20:
		return fmt.Sprintf("%dMiB", uint64(m>>20))
	case zeros >= 10:
		return fmt.Sprintf("%dKiB", uint64(m>>10))
	}
	return fmt.Sprintf("%dB", uint64(m))
}
