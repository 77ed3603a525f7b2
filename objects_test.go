package framegraph

import (
	"slices"
	"testing"

	"github.com/gogpu/wgpu/hal"
)

func TestNodeObjectsDestroyOrder(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}

	bgl, _ := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "bgl"})
	bg, _ := device.CreateBindGroup(&hal.BindGroupDescriptor{Label: "bg", Layout: bgl})
	layout, _ := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: "pl", BindGroupLayouts: []hal.BindGroupLayout{bgl}})
	module, _ := device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: "sm"})
	pipeline, _ := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{Label: "rp", Layout: layout})
	sampler, _ := device.CreateSampler(&hal.SamplerDescriptor{Label: "s"})
	buf, _ := device.CreateBuffer(&hal.BufferDescriptor{Label: "b", Size: 16})

	objs := NodeObjects{
		Pipeline:         pipeline,
		PipelineLayout:   layout,
		BindGroups:       []hal.BindGroup{bg},
		BindGroupLayouts: []hal.BindGroupLayout{bgl},
		Samplers:         []hal.Sampler{sampler},
		ShaderModules:    []hal.ShaderModule{module},
		Buffers:          []hal.Buffer{buf},
	}
	if objs.Empty() {
		t.Fatal("populated bundle reports Empty")
	}

	objs.Destroy(dev)
	want := []string{"pipeline", "pipeline_layout", "bind_group", "bind_group_layout", "sampler", "shader", "buffer"}
	if !slices.Equal(dev.destroyed, want) {
		t.Errorf("destroy order = %v, want %v", dev.destroyed, want)
	}
	if !objs.Empty() {
		t.Error("bundle not reset after Destroy")
	}
}

func TestNodeObjectsDestroyNilDevice(t *testing.T) {
	objs := NodeObjects{Buffers: []hal.Buffer{nil}}
	objs.Destroy(nil)
	if !objs.Empty() {
		t.Error("bundle not reset")
	}
}
