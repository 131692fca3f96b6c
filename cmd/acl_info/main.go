// acl_info prints the version of the ACL runtime and a summary of every accelerator visible to the process.
//
// With -bench it also measures device-to-device copy bandwidth on each device. With -sim it runs on the
// simulated driver, for systems without the Ascend toolkit.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/gomlx/goacl/acl"
	"github.com/gomlx/goacl/driver/ascendcl"
	"github.com/gomlx/goacl/driver/sim"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

var (
	flagSim        = flag.Bool("sim", false, "Use the simulated driver instead of libascendcl.so.")
	flagSimDevices = flag.Int("sim_devices", 1, "Number of simulated devices, with -sim.")
	flagBench      = flag.Bool("bench", false, "Benchmark device-to-device copies on each device.")
	flagBenchBytes = flag.Int("bench_bytes", 64<<20, "Size in bytes of the buffers copied with -bench.")
	flagBenchTimes = flag.Int("bench_times", 100, "Number of timed copies with -bench.")
)

const benchWarmUp = 10

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	rt, found, err := openRuntime(*flagSim, *flagSimDevices)
	if err != nil {
		klog.Fatalf("Failed to initialize ACL runtime: %+v", err)
	}
	if !found {
		fmt.Printf("Ascend toolkit not found (%s not in %v): no accelerators available.\n"+
			"Use -sim to run on the simulated driver.\n", ascendcl.LibraryName, ascendcl.SearchPaths())
		return
	}
	defer func() {
		if err := rt.Finalize(); err != nil {
			klog.Errorf("Failed to finalize ACL runtime: %+v", err)
		}
	}()

	fmt.Printf("ACL runtime version %s\n", must.M1(rt.Version()))
	numDevices := must.M1(rt.DeviceCount())
	fmt.Printf("%d device(s)\n", numDevices)
	for i := range numDevices {
		dev := rt.Device(i)
		info, err := dev.Info()
		if err != nil {
			klog.Fatalf("Failed to query %s: %+v", dev, err)
		}
		fmt.Print(info)
		if *flagBench {
			if err := benchCopy(dev); err != nil {
				klog.Fatalf("Benchmark on %s failed: %+v", dev, err)
			}
		}
	}
	klog.V(1).Infof("Live resources at exit: %s", rt.Stats())
}

// openRuntime initializes the simulated driver if useSim, or the ACL library installed in the system otherwise.
// If the library is not installed it returns found=false and no error.
func openRuntime(useSim bool, simDevices int) (rt *acl.Runtime, found bool, err error) {
	if useSim {
		rt, err = acl.Init(sim.New(sim.WithDevices(simDevices)))
		return rt, err == nil, err
	}
	rt, err = acl.Load()
	if errors.Is(err, ascendcl.ErrNotFound) {
		klog.V(1).Infof("ACL library not available: %v", err)
		return nil, false, nil
	}
	return rt, err == nil, err
}

// benchCopy measures device-to-device copies of half-precision buffers on the default context of dev.
func benchCopy(dev acl.Device) error {
	numElements := *flagBenchBytes / 2
	if numElements <= 0 {
		return errors.Errorf("-bench_bytes must be at least 2, got %d", *flagBenchBytes)
	}
	ctx, err := dev.FetchDefault()
	if err != nil {
		return err
	}
	return ctx.Apply(func(cur *acl.CurrentCtx) error {
		host := make([]float16.Float16, numElements)
		for i := range host {
			host[i] = float16.Fromfloat32(float32(i % 2048))
		}
		src, err := acl.FromHost(cur, host)
		if err != nil {
			return err
		}
		dst, err := acl.Malloc[float16.Float16](cur, numElements)
		if err != nil {
			return err
		}
		s, err := cur.Stream()
		if err != nil {
			return err
		}
		avg, err := s.Bench(func(_ int, s *acl.Stream) error {
			return s.MemcpyD2D(dst.Bytes(), src.Bytes())
		}, *flagBenchTimes, benchWarmUp)
		if err != nil {
			return err
		}

		got := make([]float16.Float16, numElements)
		if err := acl.MemcpyD2H(got, dst.Bytes()); err != nil {
			return err
		}
		last := numElements - 1
		if got[last] != host[last] {
			return errors.Errorf("copied buffer differs: element %d is %s, wanted %s", last, got[last], host[last])
		}
		fmt.Printf("  D2D copy of %s: %s per copy, %.2f GB/s\n", acl.MemSize(src.Len()), avg, bandwidth(src.Len(), avg))
		return nil
	})
}

// bandwidth in GB/s: one read and one write of size bytes.
func bandwidth(size int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return 2 * float64(size) / elapsed.Seconds() / 1e9
}
