package acl

import (
	"math"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/gomlx/goacl/driver"
	"github.com/gomlx/goacl/driver/sim"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMemcpy(t *testing.T) {
	rt, d := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		host := []float32{1, 2, 3, 4}
		mem := capture(FromHost(cur, host)).Test(t)
		require.Equal(t, 16, mem.Len())
		require.False(t, mem.IsEmpty())
		require.NotNil(t, mem.AsRaw())

		got := make([]float32, 4)
		require.NoError(t, MemcpyD2H(got, mem.Bytes()))
		require.Equal(t, host, got)

		// Device to device.
		mem2 := capture(Malloc[float32](cur, 4)).Test(t)
		require.NoError(t, MemcpyD2D(mem2.Bytes(), mem.Bytes()))
		got = make([]float32, 4)
		require.NoError(t, MemcpyD2H(got, mem2.Bytes()))
		require.Equal(t, host, got)

		// Partial views.
		require.NoError(t, MemcpyH2D(mem2.Bytes().Slice(0, 8), []float32{10, 20}))
		require.NoError(t, MemcpyD2H(got[:2], mem2.Bytes().Slice(8, 16)))
		require.Equal(t, []float32{3, 4, 3, 4}, got)
		require.NoError(t, MemcpyD2H(got, mem2.Bytes()))
		require.Equal(t, []float32{10, 20, 3, 4}, got)

		// Different types with the same size in bytes.
		ints := make([]uint32, 4)
		require.NoError(t, MemcpyD2H(ints, mem.Bytes()))
		require.Equal(t, math.Float32bits(3), ints[2])

		// Half precision.
		half := []float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2), float16.Fromfloat32(0.25)}
		halfMem := capture(FromHost(cur, half)).Test(t)
		require.Equal(t, 6, halfMem.Len())
		gotHalf := make([]float16.Float16, 3)
		require.NoError(t, MemcpyD2H(gotHalf, halfMem.Bytes()))
		require.Equal(t, half, gotHalf)
		require.Equal(t, float32(-2), gotHalf[1].Float32())

		require.Equal(t, Stats{Blocks: 3, Bytes: 16 + 16 + 6}, rt.Stats())
		require.NoError(t, halfMem.Destroy())
		require.NoError(t, halfMem.Destroy())
		require.Equal(t, Stats{Blocks: 2, Bytes: 32}, rt.Stats())
		require.Panics(t, func() { halfMem.Bytes() })
		return nil
	}))

	// Memory left attached is freed when Apply returns.
	require.Equal(t, Stats{}, rt.Stats())
	require.Equal(t, 0, d.Live().Blocks)
}

func TestMemcpySizeMismatch(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		mem := capture(Malloc[int32](cur, 4)).Test(t)
		other := capture(Malloc[int8](cur, 8)).Test(t)
		require.Panics(t, func() { _ = MemcpyH2D(mem.Bytes(), []int32{1, 2, 3}) })
		require.Panics(t, func() { _ = MemcpyD2H(make([]int64, 1), mem.Bytes()) })
		require.Panics(t, func() { _ = MemcpyD2D(mem.Bytes(), other.Bytes()) })
		require.Panics(t, func() { mem.Bytes().Slice(4, 17) })
		require.Panics(t, func() { mem.Bytes().Slice(3, 2) })
		require.NotPanics(t, func() { _ = MemcpyD2D(mem.Bytes().Slice(8, 16), other.Bytes()) })
		return nil
	}))
}

func TestZeroLength(t *testing.T) {
	rt, d := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		mem := capture(Malloc[float64](cur, 0)).Test(t)
		require.True(t, mem.IsEmpty())
		require.Nil(t, mem.AsRaw())
		require.Equal(t, Stats{}, rt.Stats())
		require.Equal(t, 0, d.Live().Blocks)

		require.NoError(t, MemcpyH2D(mem.Bytes(), []float64{}))
		require.NoError(t, MemcpyD2H([]float64(nil), mem.Bytes()))
		require.NoError(t, MemcpyD2D(mem.Bytes(), mem.Bytes()))
		require.True(t, mem.Bytes().IsEmpty())

		empty := capture(FromHost(cur, []int16{})).Test(t)
		require.Equal(t, 0, empty.Len())
		s := capture(cur.Stream()).Test(t)
		require.NoError(t, MemcpyH2DAsync(s, empty.Bytes(), []int16{}))

		sp := empty.Sporulate()
		require.True(t, sp.IsEmpty())
		require.Nil(t, sp.AsRaw())
		require.NoError(t, sp.Sprout(cur).Destroy())

		_, err := Malloc[float64](cur, -1)
		require.Error(t, err)
		require.Panics(t, func() { cur.WrapDevMem(nil, -1) })
		_, err = Malloc[int64](cur, math.MaxInt/4)
		require.Error(t, err)
		return nil
	}))
}

func TestMemcpyAsync(t *testing.T) {
	const latency = 20 * time.Millisecond
	rt, _ := newRuntime(t, sim.WithCopyLatency(latency))
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		host := []int64{1, 2, 3, 4, 5}
		src := capture(Malloc[int64](cur, len(host))).Test(t)
		dst := capture(Malloc[int64](cur, len(host))).Test(t)

		// Both copies are ordered on the stream: the second one sees the result of the first.
		start := time.Now()
		require.NoError(t, MemcpyH2DAsync(s, src.Bytes(), host))
		require.NoError(t, s.MemcpyD2D(dst.Bytes(), src.Bytes()))
		require.NoError(t, s.Synchronize())
		require.GreaterOrEqual(t, time.Since(start), 2*latency)
		require.True(t, capture(s.IsComplete()).Test(t))

		got := make([]int64, len(host))
		require.NoError(t, MemcpyD2H(got, dst.Bytes()))
		require.Equal(t, host, got)
		return nil
	}))
	require.Equal(t, Stats{}, rt.Stats())
}

// memcpyCounter counts the native copies issued.
type memcpyCounter struct {
	*sim.Driver
	calls atomic.Int64
}

func (c *memcpyCounter) Memcpy(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind driver.MemcpyKind) driver.Status {
	c.calls.Add(1)
	return c.Driver.Memcpy(dst, dstMax, src, count, kind)
}

func (c *memcpyCounter) MemcpyAsync(dst unsafe.Pointer, dstMax uintptr, src unsafe.Pointer, count uintptr, kind driver.MemcpyKind, stream driver.Handle) driver.Status {
	c.calls.Add(1)
	return c.Driver.MemcpyAsync(dst, dstMax, src, count, kind, stream)
}

// TestMemcpyAfterFree checks views of freed or sporulated memory never reach the native copy functions.
func TestMemcpyAfterFree(t *testing.T) {
	counter := &memcpyCounter{Driver: sim.New()}
	rt := capture(Init(counter)).Test(t)
	defer func() { require.NoError(t, rt.Finalize()) }()
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)

	var leaked DevSlice
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		other := capture(Malloc[float32](cur, 4)).Test(t)
		mem := capture(Malloc[float32](cur, 4)).Test(t)
		kept := mem.Bytes()
		require.NoError(t, mem.Destroy())

		host := make([]float32, 4)
		require.Panics(t, func() { _ = MemcpyH2D(kept, host) })
		require.Panics(t, func() { _ = MemcpyH2D(kept.Slice(0, 8), host[:2]) })
		require.Panics(t, func() { _ = MemcpyD2H(host, kept) })
		require.Panics(t, func() { _ = MemcpyD2D(kept, other.Bytes()) })
		require.Panics(t, func() { _ = MemcpyD2D(other.Bytes(), kept) })
		require.Panics(t, func() { _ = MemcpyH2DAsync(s, kept, host) })
		require.Panics(t, func() { _ = s.MemcpyD2D(other.Bytes(), kept) })
		require.Equal(t, int64(0), counter.calls.Load())

		// Views of sporulated memory are invalid too, but the sprouted memory can be used.
		mem = capture(FromHost(cur, []float32{1, 2, 3, 4})).Test(t)
		kept = mem.Bytes()
		sp := mem.Sporulate()
		require.Panics(t, func() { _ = MemcpyD2H(host, kept) })
		require.NoError(t, MemcpyD2H(host, sp.Sprout(cur).Bytes()))
		require.Equal(t, []float32{1, 2, 3, 4}, host)
		require.Equal(t, int64(2), counter.calls.Load())

		leaked = other.Bytes()
		return nil
	}))

	// Memory is freed when the Apply call returns, and so are its views.
	require.Panics(t, func() { _ = MemcpyD2H(make([]float32, 4), leaked) })
	require.Equal(t, int64(2), counter.calls.Load())
}
