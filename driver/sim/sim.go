// Package sim implements driver.API with a simulated Ascend accelerator, entirely in Go.
//
// It follows the documented behavior of libascendcl closely enough to exercise the acl package without hardware:
//
//   - aclInit must be called first, and only once.
//   - SetDevice lazily creates the device default (primary) context and makes it current.
//   - CreateContext makes the new context current; the current context can't be set to null.
//   - Every stream executes its commands in submission order, on its own goroutine.
//   - Events are timestamped when the stream reaches them, and streams can wait on events of other streams.
//   - Device memory is host memory owned by the simulator; asynchronous copies can be given an artificial latency.
//
// The simulator models a single host thread: there is only one current context slot, shared by all goroutines.
package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/goacl/driver"
	"k8s.io/klog/v2"
)

// Option configures a simulated Driver.
type Option func(cfg *config)

type config struct {
	numDevices          int
	socName             string
	aiCore, vectorCore  int64
	l2Size              int64
	major, minor, patch int32
	copyLatency         time.Duration
}

// WithDevices sets the number of simulated devices. It can be 0. Default is 1.
func WithDevices(n int) Option {
	return func(cfg *config) { cfg.numDevices = n }
}

// WithSocName sets the name returned by GetSocName. Default is "Ascend910B1".
func WithSocName(name string) Option {
	return func(cfg *config) { cfg.socName = name }
}

// WithCapabilities sets the number of AI cores, vector cores and the size of the L2 cache in bytes.
func WithCapabilities(aiCore, vectorCore int, l2Size int64) Option {
	return func(cfg *config) {
		cfg.aiCore = int64(aiCore)
		cfg.vectorCore = int64(vectorCore)
		cfg.l2Size = l2Size
	}
}

// WithVersion sets the runtime version returned by GetVersion.
func WithVersion(major, minor, patch int) Option {
	return func(cfg *config) {
		cfg.major, cfg.minor, cfg.patch = int32(major), int32(minor), int32(patch)
	}
}

// WithCopyLatency adds an artificial latency to every asynchronous memory copy, executed on the stream.
func WithCopyLatency(latency time.Duration) Option {
	return func(cfg *config) { cfg.copyLatency = latency }
}

// Driver is a simulated accelerator. Create it with New.
type Driver struct {
	cfg config

	mu          sync.Mutex
	initialized bool
	finalized   bool
	lastHandle  driver.Handle
	current     driver.Handle
	primaries   []driver.Handle
	contexts    map[driver.Handle]*simContext
	streams     map[driver.Handle]*stream
	events      map[driver.Handle]*event
	blocks      map[uintptr]*block

	switches atomic.Int64
}

var _ driver.API = (*Driver)(nil)

type simContext struct {
	device  int32
	primary bool
}

// New creates a simulated driver. It still needs to be initialized with Init.
func New(options ...Option) *Driver {
	d := &Driver{
		cfg: config{
			numDevices: 1,
			socName:    "Ascend910B1",
			aiCore:     24,
			vectorCore: 48,
			l2Size:     192 << 20,
			major:      1,
		},
		contexts: make(map[driver.Handle]*simContext),
		streams:  make(map[driver.Handle]*stream),
		events:   make(map[driver.Handle]*event),
		blocks:   make(map[uintptr]*block),
	}
	for _, option := range options {
		option(&d.cfg)
	}
	d.primaries = make([]driver.Handle, d.cfg.numDevices)
	return d
}

// newHandle returns a new unique handle. It must be called with d.mu locked.
func (d *Driver) newHandle() driver.Handle {
	d.lastHandle += 0x10
	return 0x1000 + d.lastHandle
}

// checkInit must be called with d.mu locked.
func (d *Driver) checkInit() driver.Status {
	if !d.initialized {
		return driver.ErrorUninitialize
	}
	return driver.Success
}

// checkCurrent must be called with d.mu locked.
func (d *Driver) checkCurrent() driver.Status {
	if status := d.checkInit(); !status.Ok() {
		return status
	}
	if d.current == 0 {
		return driver.ErrorRtContextNull
	}
	return driver.Success
}

// Init implements driver.API.
func (d *Driver) Init(configPath string) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized || d.finalized {
		return driver.ErrorRepeatInitialize
	}
	klog.V(1).Infof("sim: initialized with %d device(s), config %q", d.cfg.numDevices, configPath)
	d.initialized = true
	return driver.Success
}

// Finalize implements driver.API.
func (d *Driver) Finalize() driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return driver.ErrorUninitialize
	}
	d.initialized = false
	d.finalized = true
	d.current = 0
	return driver.Success
}

// GetVersion implements driver.API.
func (d *Driver) GetVersion() (major, minor, patch int32, status driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status = d.checkInit(); !status.Ok() {
		return
	}
	return d.cfg.major, d.cfg.minor, d.cfg.patch, driver.Success
}

// GetDeviceCount implements driver.API.
func (d *Driver) GetDeviceCount() (uint32, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return 0, status
	}
	return uint32(d.cfg.numDevices), driver.Success
}

func (d *Driver) validDevice(deviceID int32) bool {
	return deviceID >= 0 && int(deviceID) < d.cfg.numDevices
}

// SetDevice implements driver.API.
func (d *Driver) SetDevice(deviceID int32) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return status
	}
	if !d.validDevice(deviceID) {
		return driver.ErrorRtInvalidDeviceID
	}
	if d.primaries[deviceID] == 0 {
		h := d.newHandle()
		d.contexts[h] = &simContext{device: deviceID, primary: true}
		d.primaries[deviceID] = h
	}
	d.current = d.primaries[deviceID]
	return driver.Success
}

// GetDevice implements driver.API.
func (d *Driver) GetDevice() (int32, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkCurrent(); !status.Ok() {
		return -1, status
	}
	return d.contexts[d.current].device, driver.Success
}

// SynchronizeDevice implements driver.API.
func (d *Driver) SynchronizeDevice() driver.Status {
	d.mu.Lock()
	if status := d.checkCurrent(); !status.Ok() {
		d.mu.Unlock()
		return status
	}
	device := d.contexts[d.current].device
	var toSync []*stream
	for _, s := range d.streams {
		if ctx, found := d.contexts[s.ctx]; found && ctx.device == device {
			toSync = append(toSync, s)
		}
	}
	d.mu.Unlock()
	for _, s := range toSync {
		s.synchronize()
	}
	return driver.Success
}

// GetDeviceCapability implements driver.API.
func (d *Driver) GetDeviceCapability(deviceID uint32, info driver.DeviceInfo) (int64, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return 0, status
	}
	if !d.validDevice(int32(deviceID)) {
		return 0, driver.ErrorRtInvalidDeviceID
	}
	switch info {
	case driver.AICoreNum:
		return d.cfg.aiCore, driver.Success
	case driver.VectorCoreNum:
		return d.cfg.vectorCore, driver.Success
	case driver.L2Size:
		return d.cfg.l2Size, driver.Success
	}
	return 0, driver.ErrorInvalidParam
}

// GetSocName implements driver.API.
func (d *Driver) GetSocName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ""
	}
	return d.cfg.socName
}

// CreateContext implements driver.API.
func (d *Driver) CreateContext(deviceID int32) (driver.Handle, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return 0, status
	}
	if !d.validDevice(deviceID) {
		return 0, driver.ErrorRtInvalidDeviceID
	}
	h := d.newHandle()
	d.contexts[h] = &simContext{device: deviceID}
	d.current = h
	return h, driver.Success
}

// DestroyContext implements driver.API. Default contexts can't be destroyed.
func (d *Driver) DestroyContext(ctx driver.Handle) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return status
	}
	c, found := d.contexts[ctx]
	if !found || c.primary {
		return driver.ErrorRtParamInvalid
	}
	delete(d.contexts, ctx)
	if d.current == ctx {
		d.current = 0
	}
	return driver.Success
}

// GetCurrentContext implements driver.API.
func (d *Driver) GetCurrentContext() (driver.Handle, driver.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkCurrent(); !status.Ok() {
		return 0, status
	}
	return d.current, driver.Success
}

// SetCurrentContext implements driver.API. Setting it to the null handle is an error.
func (d *Driver) SetCurrentContext(ctx driver.Handle) driver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status := d.checkInit(); !status.Ok() {
		return status
	}
	if _, found := d.contexts[ctx]; !found {
		return driver.ErrorRtParamInvalid
	}
	d.current = ctx
	d.switches.Add(1)
	return driver.Success
}

// Current returns the current context handle, or 0 if there is none, without going through the API.
func (d *Driver) Current() driver.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// ContextSwitches returns the number of successful SetCurrentContext calls so far.
func (d *Driver) ContextSwitches() int64 {
	return d.switches.Load()
}

// Live holds the number of live simulated objects.
type Live struct {
	Contexts, Streams, Events, Blocks int
}

// Live returns the number of objects currently alive in the simulator. Default contexts are included.
func (d *Driver) Live() Live {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Live{
		Contexts: len(d.contexts),
		Streams:  len(d.streams),
		Events:   len(d.events),
		Blocks:   len(d.blocks),
	}
}
