package acl

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/goacl/driver"
	"github.com/gomlx/goacl/driver/sim"
	"github.com/stretchr/testify/require"
)

// launch submits cmd to the stream as if it were a kernel.
func launch(t *testing.T, d *sim.Driver, s *Stream, cmd func()) {
	require.Equal(t, driver.Success, d.Launch(s.AsRaw(), cmd))
}

func TestStream(t *testing.T) {
	rt, d := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		require.Same(t, cur, s.Context())
		require.Equal(t, int64(1), rt.Stats().Streams)

		release := make(chan struct{})
		var order []int
		launch(t, d, s, func() { <-release })
		for i := range 5 {
			launch(t, d, s, func() { order = append(order, i) })
		}
		require.False(t, capture(s.IsComplete()).Test(t))
		close(release)
		require.NoError(t, s.Synchronize())
		require.True(t, capture(s.IsComplete()).Test(t))
		require.Equal(t, []int{0, 1, 2, 3, 4}, order)

		require.NoError(t, s.Destroy())
		require.NoError(t, s.Destroy())
		require.Error(t, s.Synchronize())
		require.Equal(t, 0, d.Live().Streams)

		// Streams left attached are destroyed when Apply returns.
		_ = capture(cur.Stream()).Test(t)
		native, status := d.CreateStream()
		require.Equal(t, driver.Success, status)
		wrapped := cur.WrapStream(native)
		require.Equal(t, native, wrapped.AsRaw())
		require.Equal(t, int64(2), rt.Stats().Streams)
		return nil
	}))
	require.Equal(t, Stats{}, rt.Stats())
	require.Equal(t, 0, d.Live().Streams)
}

// TestStreamDestroyWaits checks pending commands are finished before a stream is destroyed.
func TestStreamDestroyWaits(t *testing.T) {
	const latency = 50 * time.Millisecond
	rt, d := newRuntime(t, sim.WithCopyLatency(latency))
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		mem := capture(Malloc[byte](cur, 1024)).Test(t)
		host := make([]byte, 1024)
		for i := range host {
			host[i] = byte(i)
		}
		start := time.Now()
		require.NoError(t, MemcpyH2DAsync(s, mem.Bytes(), host))
		require.NoError(t, s.Destroy())
		require.GreaterOrEqual(t, time.Since(start), latency)

		got := make([]byte, 1024)
		require.NoError(t, MemcpyD2H(got, mem.Bytes()))
		require.Equal(t, host, got)
		return nil
	}))
	require.Equal(t, sim.Live{Contexts: 1}, d.Live())
}

func TestEvents(t *testing.T) {
	rt, d := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		start := capture(s.Record()).Test(t)
		launch(t, d, s, func() { time.Sleep(20 * time.Millisecond) })
		end := capture(s.Record()).Test(t)
		require.NoError(t, end.Synchronize())
		elapsed := capture(end.ElapseFrom(start)).Test(t)
		require.GreaterOrEqual(t, elapsed, 19*time.Millisecond)
		require.Equal(t, int64(2), rt.Stats().Events)

		// Elapsed time requires both events to be reached.
		release := make(chan struct{})
		launch(t, d, s, func() { <-release })
		pending := capture(s.Record()).Test(t)
		_, err := pending.ElapseFrom(start)
		require.Error(t, err)
		status, _ := StatusOf(err)
		require.Equal(t, driver.ErrorRtEventTimestamp, status)
		close(release)
		require.NoError(t, pending.Synchronize())

		require.NoError(t, start.Destroy())
		require.NoError(t, start.Destroy())
		_, err = end.ElapseFrom(start)
		require.Error(t, err)
		return nil
	}))
	require.Equal(t, Stats{}, rt.Stats())
	require.Equal(t, 0, d.Live().Events)
}

// TestWaitFor checks a stream waits for an event recorded on another stream.
func TestWaitFor(t *testing.T) {
	rt, d := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		producer := capture(cur.Stream()).Test(t)
		consumer := capture(cur.Stream()).Test(t)
		var produced, observed atomic.Bool
		launch(t, d, producer, func() {
			time.Sleep(30 * time.Millisecond)
			produced.Store(true)
		})
		ready := capture(producer.Record()).Test(t)
		require.NoError(t, consumer.WaitFor(ready))
		launch(t, d, consumer, func() { observed.Store(produced.Load()) })
		require.NoError(t, consumer.Synchronize())
		require.True(t, observed.Load())
		return nil
	}))
}

func TestBench(t *testing.T) {
	rt, d := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		var calls, maxIndex int
		avg, err := s.Bench(func(i int, s *Stream) error {
			calls++
			maxIndex = max(maxIndex, i)
			launch(t, d, s, func() { time.Sleep(time.Millisecond) })
			return nil
		}, 100, 10)
		require.NoError(t, err)
		require.Equal(t, 110, calls)
		require.Equal(t, 99, maxIndex)
		require.GreaterOrEqual(t, avg, 900*time.Microsecond)

		// Doubling the work per iteration should roughly double the time.
		avg2, err := s.Bench(func(i int, s *Stream) error {
			launch(t, d, s, func() { time.Sleep(2 * time.Millisecond) })
			return nil
		}, 20, 0)
		require.NoError(t, err)
		require.Greater(t, avg2, avg)

		_, err = s.Bench(func(int, *Stream) error { return nil }, 0, 0)
		require.Error(t, err)
		_, err = s.Bench(func(int, *Stream) error { return nil }, 1, -1)
		require.Error(t, err)

		// Only the events created by Bench itself are gone.
		require.Equal(t, int64(0), rt.Stats().Events)
		return nil
	}))
}

// reservedQuery is a driver whose StreamQuery returns the reserved status, which the runtime never should.
type reservedQuery struct {
	*sim.Driver
}

func (reservedQuery) StreamQuery(driver.Handle) (driver.StreamStatus, driver.Status) {
	return driver.StreamReserved, driver.Success
}

func TestIsCompleteReservedStatus(t *testing.T) {
	rt := capture(Init(reservedQuery{sim.New()})).Test(t)
	defer func() { require.NoError(t, rt.Finalize()) }()
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		require.Panics(t, func() { _, _ = s.IsComplete() })
		return nil
	}))
	require.Equal(t, Stats{}, rt.Stats())
}
