package acl

import (
	"testing"

	"github.com/gomlx/goacl/driver"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// TestNoCurrentContext checks the behavior when the process has no current context yet.
func TestNoCurrentContext(t *testing.T) {
	rt, d := newRuntime(t)
	called := false
	err := rt.ApplyCurrent(func(cur *CurrentCtx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrNoContext)
	require.False(t, called)

	// With no current context, the newly created context becomes the current one: there is nothing to restore.
	ctx := capture(rt.Device(0).Context()).Test(t)
	require.False(t, ctx.IsPrimary())
	require.Equal(t, ctx.AsRaw(), d.Current())
	require.Equal(t, int64(1), rt.Stats().Contexts)
	require.NoError(t, rt.ApplyCurrent(func(cur *CurrentCtx) error {
		require.Equal(t, ctx.AsRaw(), cur.AsRaw())
		require.Same(t, rt, cur.Runtime())
		require.Equal(t, 0, capture(cur.Device()).Test(t).Index())
		return cur.SyncDevice()
	}))
	require.NoError(t, ctx.Destroy())
	require.NoError(t, ctx.Destroy())
	require.Equal(t, driver.Handle(0), d.Current())
	require.Equal(t, Stats{}, rt.Stats())
	require.Error(t, ctx.Apply(func(cur *CurrentCtx) error { return nil }))

	// Same for the default context.
	def := capture(rt.Device(0).FetchDefault()).Test(t)
	require.True(t, def.IsPrimary())
	require.Equal(t, def.AsRaw(), d.Current())
	require.Equal(t, int64(0), rt.Stats().Contexts)
}

// TestApplyRestoresCurrent checks nested Apply calls always restore the previous current context.
func TestApplyRestoresCurrent(t *testing.T) {
	rt, d := newRuntime(t)
	dev := rt.Device(0)
	def := capture(dev.FetchDefault()).Test(t)
	require.Equal(t, def.AsRaw(), d.Current())
	require.Same(t, rt, def.Device().rt)

	// Creating contexts doesn't change the current one.
	ctxA := must.M1(dev.Context())
	defer func() { require.NoError(t, ctxA.Destroy()) }()
	ctxB := must.M1(dev.Context())
	defer func() { require.NoError(t, ctxB.Destroy()) }()
	require.Equal(t, def.AsRaw(), d.Current())
	require.NotEqual(t, ctxA.AsRaw(), ctxB.AsRaw())

	require.NoError(t, ctxA.Apply(func(cur *CurrentCtx) error {
		require.Equal(t, ctxA.AsRaw(), cur.AsRaw())
		require.Equal(t, ctxA.AsRaw(), d.Current())
		err := ctxB.Apply(func(cur *CurrentCtx) error {
			require.Equal(t, ctxB.AsRaw(), d.Current())
			require.NoError(t, def.Apply(func(cur *CurrentCtx) error {
				require.Equal(t, def.AsRaw(), d.Current())
				return nil
			}))
			require.Equal(t, ctxB.AsRaw(), d.Current())
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, ctxA.AsRaw(), d.Current())

		// Applying the context already current doesn't switch.
		switches := d.ContextSwitches()
		require.NoError(t, ctxA.Apply(func(cur *CurrentCtx) error {
			require.Equal(t, ctxA.AsRaw(), d.Current())
			return nil
		}))
		require.Equal(t, switches, d.ContextSwitches())
		return nil
	}))
	require.Equal(t, def.AsRaw(), d.Current())

	// Errors are returned, and the previous context is still restored.
	errBoom := errors.New("boom")
	err := ctxB.Apply(func(cur *CurrentCtx) error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, def.AsRaw(), d.Current())

	// The default context is owned by the device: Destroy is a no-op.
	require.NoError(t, def.Destroy())
	require.Equal(t, def.AsRaw(), d.Current())
}

// TestCurrentCtxOutOfScope checks a CurrentCtx can't be used after the Apply call that created it returns.
func TestCurrentCtxOutOfScope(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	var leaked *CurrentCtx
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		leaked = cur
		return nil
	}))
	_, err := leaked.Stream()
	require.Error(t, err)
	_, err = leaked.MallocBytes(16)
	require.Error(t, err)
	_, err = leaked.Device()
	require.Error(t, err)
	require.Panics(t, func() { leaked.WrapStream(0x1234) })
	require.Panics(t, func() { leaked.WrapDevMem(nil, 0) })
	require.Equal(t, Stats{}, rt.Stats())
}

func TestApplyCurrentUnchecked(t *testing.T) {
	rt, d := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, rt.ApplyCurrentUnchecked(d.Current(), func(cur *CurrentCtx) error {
		require.Equal(t, ctx.AsRaw(), cur.AsRaw())
		_, err := cur.MallocBytes(1024)
		return err
	}))
	require.Equal(t, Stats{}, rt.Stats())
}

// TestApplyPanics checks the previous context is restored, and the attached resources released, when f panics.
func TestApplyPanics(t *testing.T) {
	rt, d := newRuntime(t)
	dev := rt.Device(0)
	def := capture(dev.FetchDefault()).Test(t)
	ctx := must.M1(dev.Context())
	defer func() { require.NoError(t, ctx.Destroy()) }()

	require.PanicsWithValue(t, "boom", func() {
		_ = ctx.Apply(func(cur *CurrentCtx) error {
			_ = capture(cur.Stream()).Test(t)
			_ = capture(cur.MallocBytes(256)).Test(t)
			require.Equal(t, ctx.AsRaw(), d.Current())
			panic("boom")
		})
	})
	require.Equal(t, def.AsRaw(), d.Current())
	require.Equal(t, Stats{Contexts: 1}, rt.Stats())
	require.Equal(t, 0, d.Live().Streams)
	require.Equal(t, 0, d.Live().Blocks)
}

// TestLongLivedApply checks resources destroyed or sporulated during an Apply call are no longer tracked by it.
func TestLongLivedApply(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := capture(rt.Device(0).FetchDefault()).Test(t)
	require.NoError(t, ctx.Apply(func(cur *CurrentCtx) error {
		s := capture(cur.Stream()).Test(t)
		for range 1000 {
			e := capture(s.Record()).Test(t)
			require.NoError(t, e.Destroy())
			mem := capture(cur.MallocBytes(8)).Test(t)
			require.NoError(t, mem.Destroy())
		}
		require.Equal(t, 0, cur.others.Len())
		_ = capture(s.Bench(func(int, *Stream) error { return nil }, 10, 0)).Test(t)
		require.Equal(t, 0, cur.others.Len())
		require.Equal(t, 1, cur.streams.Len())

		mem := capture(cur.MallocBytes(8)).Test(t)
		e := capture(s.Record()).Test(t)
		require.Equal(t, 2, cur.others.Len())
		memSpore, eventSpore, streamSpore := mem.Sporulate(), e.Sporulate(), s.Sporulate()
		require.Equal(t, 0, cur.others.Len())
		require.Equal(t, 0, cur.streams.Len())

		// Sprouted resources are attached again, and released with the Apply call.
		memSpore.Sprout(cur)
		eventSpore.Sprout(cur)
		streamSpore.Sprout(cur)
		require.Equal(t, 2, cur.others.Len())
		require.Equal(t, 1, cur.streams.Len())
		return nil
	}))
	require.Equal(t, Stats{}, rt.Stats())
}
