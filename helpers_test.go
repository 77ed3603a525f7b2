package framegraph

import (
	"slices"
	"sync"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

const rgba8 = gputypes.TextureFormatRGBA8Unorm

func extent(w, h uint32) gputypes.Extent3D {
	return gputypes.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
}

// createNoopDevice opens a headless device on the noop backend. Noop
// buffers keep their contents in memory, so uploads can be read back.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// readBuffer maps a noop buffer and copies size bytes out of it.
func readBuffer(t *testing.T, device hal.Device, buf hal.Buffer, size uint64) []byte {
	t.Helper()
	m, err := device.MapBuffer(buf, 0, size)
	if err != nil {
		t.Fatalf("MapBuffer: %v", err)
	}
	defer func() { _ = device.UnmapBuffer(buf) }()
	return slices.Clone(unsafe.Slice((*byte)(m.Ptr), size))
}

// countingDevice records Destroy* calls made through it.
type countingDevice struct {
	hal.Device

	mu        sync.Mutex
	destroyed []string
}

func (d *countingDevice) record(kind string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = append(d.destroyed, kind)
}

func (d *countingDevice) count(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, k := range d.destroyed {
		if k == kind {
			n++
		}
	}
	return n
}

func (d *countingDevice) DestroyBuffer(b hal.Buffer) {
	d.record("buffer")
	d.Device.DestroyBuffer(b)
}

func (d *countingDevice) DestroyTexture(tex hal.Texture) {
	d.record("texture")
	d.Device.DestroyTexture(tex)
}

func (d *countingDevice) DestroyTextureView(v hal.TextureView) {
	d.record("view")
	d.Device.DestroyTextureView(v)
}

func (d *countingDevice) DestroySampler(s hal.Sampler) {
	d.record("sampler")
	d.Device.DestroySampler(s)
}

func (d *countingDevice) DestroyRenderPipeline(p hal.RenderPipeline) {
	d.record("pipeline")
	d.Device.DestroyRenderPipeline(p)
}

func (d *countingDevice) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.record("pipeline_layout")
	d.Device.DestroyPipelineLayout(l)
}

func (d *countingDevice) DestroyBindGroup(bg hal.BindGroup) {
	d.record("bind_group")
	d.Device.DestroyBindGroup(bg)
}

func (d *countingDevice) DestroyBindGroupLayout(l hal.BindGroupLayout) {
	d.record("bind_group_layout")
	d.Device.DestroyBindGroupLayout(l)
}

func (d *countingDevice) DestroyShaderModule(m hal.ShaderModule) {
	d.record("shader")
	d.Device.DestroyShaderModule(m)
}

func mustAdd(t *testing.T, g *Graph, n *Node) {
	t.Helper()
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode(%q) = %v", n.Name, err)
	}
}

// recorder collects callback invocations in order.
type recorder struct {
	calls []string
}

func (r *recorder) node(name string, inputs, outputs []string) *Node {
	return &Node{
		Name:          name,
		Inputs:        inputs,
		Outputs:       outputs,
		ShouldExecute: true,
		Setup: func(g *Graph, n *Node) error {
			r.calls = append(r.calls, "setup:"+n.Name)
			for _, out := range n.Outputs {
				if err := AddBufferResource(g.Store(), out, &BufferResource[uint32]{
					ResourceInfo: ResourceInfo{Parent: n.Name, Prepared: true},
				}); err != nil {
					return err
				}
			}
			return nil
		},
		Execute: func(_ *Graph, _ hal.CommandEncoder, n *Node) error {
			r.calls = append(r.calls, "exec:"+n.Name)
			return nil
		},
	}
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}
