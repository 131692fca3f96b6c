package acl

import (
	"fmt"
	"testing"

	"github.com/gomlx/goacl/driver"
	"github.com/gomlx/goacl/driver/sim"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

type errTester[T any] struct {
	value T
	err   error
}

// capture is a shortcut to test that there is no error and return the value.
func capture[T any](value T, err error) errTester[T] {
	return errTester[T]{value, err}
}

func (e errTester[T]) Test(t *testing.T) T {
	require.NoError(t, e.err)
	return e.value
}

// newRuntime returns a Runtime over a new simulated driver, finalized at the end of the test.
func newRuntime(t *testing.T, options ...sim.Option) (*Runtime, *sim.Driver) {
	d := sim.New(options...)
	rt := capture(Init(d)).Test(t)
	t.Cleanup(func() {
		require.NoError(t, rt.Finalize())
	})
	return rt, d
}

func TestRuntime(t *testing.T) {
	d := sim.New(sim.WithVersion(8, 0, 3))
	rt := capture(Init(d)).Test(t)
	fmt.Printf("ACL runtime version %s\n", capture(rt.Version()).Test(t))
	require.Equal(t, Version{8, 0, 3}, capture(rt.Version()).Test(t))
	require.Equal(t, Stats{}, rt.Stats())
	require.Same(t, d, rt.API())

	// The native library can only be initialized once.
	_, err := Init(d)
	require.Error(t, err)
	status, found := StatusOf(err)
	require.True(t, found)
	require.Equal(t, driver.ErrorRepeatInitialize, status)

	require.NoError(t, rt.Finalize())
	require.NoError(t, rt.Finalize())
	_, err = rt.Version()
	require.Error(t, err)

	_, err = Init(nil)
	require.Error(t, err)
}

func TestErrors(t *testing.T) {
	require.NoError(t, check("aclrtMalloc", driver.Success))
	err := errors.WithMessage(check("aclrtMalloc", driver.ErrorRtMemoryAllocation), "allocating")
	require.ErrorContains(t, err, "ACL error (code=207001, ACL_ERROR_RT_MEMORY_ALLOCATION): aclrtMalloc failed")
	status, found := StatusOf(err)
	require.True(t, found)
	require.Equal(t, driver.ErrorRtMemoryAllocation, status)

	status, found = StatusOf(ErrNoContext)
	require.False(t, found)
	require.Equal(t, driver.Success, status)
}

func TestDevices(t *testing.T) {
	rt, _ := newRuntime(t, sim.WithDevices(2), sim.WithSocName("Ascend310P3"), sim.WithCapabilities(8, 7, 96<<20))
	require.Equal(t, 2, capture(rt.DeviceCount()).Test(t))
	dev, found, err := rt.FetchDevice()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 0, dev.Index())

	dev = rt.Device(1)
	require.Equal(t, "Dev1", dev.String())
	info := capture(dev.Info()).Test(t)
	fmt.Print(info)
	require.Equal(t, Info{Index: 1, Name: "Ascend310P3", AICore: 8, VectorCore: 7, L2Cache: 96 << 20}, info)
	require.Equal(t, "Dev1: Ascend310P3\n  AI Core: 8\n  Vector Core: 7\n  L2 Cache: 96MiB\n", info.String())

	// Device indices are only validated on use.
	_, err = rt.Device(2).AICore()
	require.Error(t, err)
	status, _ := StatusOf(err)
	require.Equal(t, driver.ErrorRtInvalidDeviceID, status)
	_, err = rt.Device(2).FetchDefault()
	require.Error(t, err)
}

func TestNoDevices(t *testing.T) {
	rt, _ := newRuntime(t, sim.WithDevices(0))
	require.Equal(t, 0, capture(rt.DeviceCount()).Test(t))
	_, found, err := rt.FetchDevice()
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemSize(t *testing.T) {
	for _, tc := range []struct {
		size MemSize
		want string
	}{
		{0, "0"},
		{12, "12B"},
		{1536, "1536B"},
		{3 << 10, "3KiB"},
		{192 << 20, "192MiB"},
		{(1 << 30) + (1 << 20), "1025MiB"},
		{64 << 30, "64GiB"},
		{2 << 40, "2TiB"},
	} {
		require.Equal(t, tc.want, tc.size.String())
	}
}
