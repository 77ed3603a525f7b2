package framegraph

import "github.com/gogpu/wgpu/hal"

// NodeObjects is the bundle of GPU objects a node creates in Setup and owns
// for the graph's lifetime. Resources shared with other nodes go in the
// Store instead.
type NodeObjects struct {
	Pipeline         hal.RenderPipeline
	PipelineLayout   hal.PipelineLayout
	BindGroups       []hal.BindGroup
	BindGroupLayouts []hal.BindGroupLayout
	Samplers         []hal.Sampler
	ShaderModules    []hal.ShaderModule
	// Buffers are node-private buffers that no other node reads.
	Buffers []hal.Buffer
}

// Empty reports whether the bundle holds no objects.
func (o *NodeObjects) Empty() bool {
	return o.Pipeline == nil && o.PipelineLayout == nil &&
		len(o.BindGroups) == 0 && len(o.BindGroupLayouts) == 0 &&
		len(o.Samplers) == 0 && len(o.ShaderModules) == 0 && len(o.Buffers) == 0
}

// Destroy releases all objects, dependents before their dependencies, and
// resets the bundle.
func (o *NodeObjects) Destroy(device hal.Device) {
	if device == nil {
		*o = NodeObjects{}
		return
	}

	if o.Pipeline != nil {
		device.DestroyRenderPipeline(o.Pipeline)
	}
	if o.PipelineLayout != nil {
		device.DestroyPipelineLayout(o.PipelineLayout)
	}
	for i := len(o.BindGroups) - 1; i >= 0; i-- {
		if o.BindGroups[i] != nil {
			device.DestroyBindGroup(o.BindGroups[i])
		}
	}
	for i := len(o.BindGroupLayouts) - 1; i >= 0; i-- {
		if o.BindGroupLayouts[i] != nil {
			device.DestroyBindGroupLayout(o.BindGroupLayouts[i])
		}
	}
	for _, s := range o.Samplers {
		if s != nil {
			device.DestroySampler(s)
		}
	}
	for _, m := range o.ShaderModules {
		if m != nil {
			device.DestroyShaderModule(m)
		}
	}
	for _, b := range o.Buffers {
		if b != nil {
			device.DestroyBuffer(b)
		}
	}
	*o = NodeObjects{}
}
