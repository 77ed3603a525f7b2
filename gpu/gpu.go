// Package gpu opens or borrows a HAL device for a frame graph.
//
// A Context owns (or borrows) one device and queue. It implements
// gpucontext.DeviceProvider, so the device can be shared with other gogpu
// libraries, and FromProvider accepts a device from them in turn.
//
//	ctx, err := gpu.Open(gputypes.BackendVulkan)
//	if err != nil {
//	    ctx, err = gpu.OpenNoop() // headless
//	}
//	defer ctx.Close()
package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop" // registers BackendEmpty

	"github.com/gogpu/framegraph"
)

var (
	// ErrBackendUnavailable is returned when the requested backend is not
	// registered with hal.
	ErrBackendUnavailable = errors.New("gpu: backend not available")

	// ErrNoAdapter is returned when a backend enumerates no adapters.
	ErrNoAdapter = errors.New("gpu: no adapters found")

	// ErrNotHAL is returned by FromProvider when the provider's device or
	// queue is not a hal type.
	ErrNotHAL = errors.New("gpu: provider does not expose hal types")

	// ErrNoDepthFormat is returned when no candidate depth format can be
	// rendered to.
	ErrNoDepthFormat = errors.New("gpu: no supported depth format")
)

// DefaultDepthFormats is the preference order used by DepthFormat when no
// candidates are given.
var DefaultDepthFormats = []gputypes.TextureFormat{
	gputypes.TextureFormatDepth32FloatStencil8,
	gputypes.TextureFormatDepth32Float,
	gputypes.TextureFormatDepth24PlusStencil8,
	gputypes.TextureFormatDepth24Plus,
	gputypes.TextureFormatDepth16Unorm,
}

// Context is an open device and queue with the adapter they came from.
type Context struct {
	instance hal.Instance // nil when borrowed
	adapter  hal.Adapter  // may be nil when borrowed
	device   hal.Device
	queue    hal.Queue

	info          gputypes.AdapterInfo
	surfaceFormat gputypes.TextureFormat
	owned         bool
	closed        bool
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	surfaceFormat gputypes.TextureFormat
	features      gputypes.Features
	limits        gputypes.Limits
}

// WithSurfaceFormat sets the format reported by SurfaceFormat.
func WithSurfaceFormat(f gputypes.TextureFormat) Option {
	return func(c *openConfig) { c.surfaceFormat = f }
}

// WithLimits overrides the device limits requested from the adapter.
func WithLimits(l gputypes.Limits) Option {
	return func(c *openConfig) { c.limits = l }
}

// WithFeatures requests optional device features.
func WithFeatures(f gputypes.Features) Option {
	return func(c *openConfig) { c.features = f }
}

// Open creates an instance on backend and opens a device on its best
// adapter: the first discrete or integrated GPU, else the first adapter.
func Open(backend gputypes.Backend, opts ...Option) (*Context, error) {
	cfg := openConfig{limits: gputypes.DefaultLimits()}
	for _, opt := range opts {
		opt(&cfg)
	}

	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w (%s)", ErrNoAdapter, backend)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(cfg.features, cfg.limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}

	framegraph.Logger().Info("gpu: device opened",
		"backend", backend.String(), "adapter", selected.Info.Name, "type", selected.Info.DeviceType)

	return &Context{
		instance:      instance,
		adapter:       selected.Adapter,
		device:        openDev.Device,
		queue:         openDev.Queue,
		info:          selected.Info,
		surfaceFormat: cfg.surfaceFormat,
		owned:         true,
	}, nil
}

// OpenNoop opens a headless device on the noop backend. Noop buffers keep
// their contents in memory; every other call succeeds without doing work.
func OpenNoop(opts ...Option) (*Context, error) {
	return Open(gputypes.BackendEmpty, opts...)
}

// FromProvider borrows the device of another gogpu component. The provider
// must either expose HalDevice() any and HalQueue() any, or return hal
// types from Device and Queue. Close does not destroy a borrowed device.
func FromProvider(p gpucontext.DeviceProvider) (*Context, error) {
	if p == nil {
		return nil, ErrNotHAL
	}

	var devAny, queueAny any
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	if hp, ok := p.(halProvider); ok {
		devAny, queueAny = hp.HalDevice(), hp.HalQueue()
	} else {
		devAny, queueAny = p.Device(), p.Queue()
	}

	device, ok := devAny.(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: device is %T", ErrNotHAL, devAny)
	}
	queue, ok := queueAny.(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: queue is %T", ErrNotHAL, queueAny)
	}

	adapter, _ := p.Adapter().(hal.Adapter)
	pinfo := p.AdapterInfo()
	return &Context{
		adapter:       adapter,
		device:        device,
		queue:         queue,
		info:          gputypes.AdapterInfo{Name: pinfo.Name, DeviceType: deviceType(pinfo.Type)},
		surfaceFormat: p.SurfaceFormat(),
	}, nil
}

// HAL returns the typed device and queue.
func (c *Context) HAL() (hal.Device, hal.Queue) { return c.device, c.queue }

// HalDevice returns the hal.Device as any, for provider-style sharing.
func (c *Context) HalDevice() any { return c.device }

// HalQueue returns the hal.Queue as any, for provider-style sharing.
func (c *Context) HalQueue() any { return c.queue }

// Device implements gpucontext.DeviceProvider.
func (c *Context) Device() gpucontext.Device { return c.device }

// Queue implements gpucontext.DeviceProvider.
func (c *Context) Queue() gpucontext.Queue { return c.queue }

// Adapter implements gpucontext.DeviceProvider.
func (c *Context) Adapter() gpucontext.Adapter { return c.adapter }

// SurfaceFormat implements gpucontext.DeviceProvider. It is
// TextureFormatUndefined for headless contexts unless set by
// WithSurfaceFormat.
func (c *Context) SurfaceFormat() gputypes.TextureFormat { return c.surfaceFormat }

// AdapterInfo implements gpucontext.DeviceProvider.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: c.info.Name, Type: adapterType(c.info.DeviceType)}
}

// Backend returns the backend the device was opened on.
func (c *Context) Backend() gputypes.Backend { return c.info.Backend }

// Owned reports whether Close destroys the device.
func (c *Context) Owned() bool { return c.owned }

// DepthFormat returns the first candidate with depth that the adapter can
// render to. Without candidates, DefaultDepthFormats is used. Without an
// adapter to ask, the first depth candidate is trusted.
func (c *Context) DepthFormat(candidates ...gputypes.TextureFormat) (gputypes.TextureFormat, error) {
	if len(candidates) == 0 {
		candidates = DefaultDepthFormats
	}
	for _, f := range candidates {
		if !f.HasDepth() {
			continue
		}
		if c.adapter == nil {
			return f, nil
		}
		caps := c.adapter.TextureFormatCapabilities(f)
		if caps.Flags&hal.TextureFormatCapabilityRenderAttachment != 0 {
			return f, nil
		}
	}
	return gputypes.TextureFormatUndefined, ErrNoDepthFormat
}

// Close waits for the device to go idle and destroys it, if owned. It is
// safe to call more than once.
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if !c.owned {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		framegraph.Logger().Warn("gpu: wait idle before close", "err", err)
	}
	c.device.Destroy()
	if c.instance != nil {
		c.instance.Destroy()
	}
}

// ParseBackend maps a backend name to its gputypes value. "noop" and
// "empty" both select the headless backend.
func ParseBackend(name string) (gputypes.Backend, error) {
	switch strings.ToLower(name) {
	case "noop", "empty":
		return gputypes.BackendEmpty, nil
	case "vulkan", "vk":
		return gputypes.BackendVulkan, nil
	case "metal":
		return gputypes.BackendMetal, nil
	case "dx12", "d3d12":
		return gputypes.BackendDX12, nil
	case "gl", "gles", "opengl":
		return gputypes.BackendGL, nil
	default:
		return gputypes.BackendEmpty, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, name)
	}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}
