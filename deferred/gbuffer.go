// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

var gbufferTargets = [3]struct {
	name   string
	format gputypes.TextureFormat
}{
	{Position, PositionFormat},
	{Normal, NormalFormat},
	{Albedo, AlbedoFormat},
}

func vertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{{
		ArrayStride: framegraph.VertexSize,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},  // position
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1}, // normal
			{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2}, // uv
		},
	}}
}

func buildGBuffer(env *Env, name string) (*framegraph.Node, error) {
	if !env.DepthFormat.HasDepth() {
		return nil, fmt.Errorf("deferred: pass %s: %v is not a depth format", name, env.DepthFormat)
	}
	primitives := env.Mesh.Primitives
	extent := env.Extent

	return &framegraph.Node{
		Name:          name,
		Inputs:        []string{Vertices, Indices, OffscreenUniforms, AlbedoMap},
		Outputs:       []string{Position, Normal, Albedo, Depth},
		ShouldExecute: true,
		Setup: func(g *framegraph.Graph, n *framegraph.Node) error {
			for _, t := range gbufferTargets {
				if _, err := framegraph.ProduceImage(g, n, framegraph.ImageDesc{
					Name:   t.name,
					Format: t.format,
					Extent: extent,
				}); err != nil {
					return err
				}
			}
			if _, err := framegraph.ProduceImage(g, n, framegraph.ImageDesc{
				Name:   Depth,
				Format: env.DepthFormat,
				Extent: extent,
				Usage:  gputypes.TextureUsageRenderAttachment,
			}); err != nil {
				return err
			}
			return setupGBufferPipeline(g, n, env)
		},
		Execute: func(g *framegraph.Graph, cmd hal.CommandEncoder, n *framegraph.Node) error {
			return recordGBuffer(g, cmd, n, extent, primitives)
		},
	}, nil
}

func setupGBufferPipeline(g *framegraph.Graph, n *framegraph.Node, env *Env) error {
	device := g.Device()
	store := g.Store()
	obj := &n.Objects

	ubo, err := framegraph.GetBufferResource[framegraph.UniformOffscreen](store, OffscreenUniforms)
	if err != nil {
		return err
	}
	albedo, err := store.GetImageResource(AlbedoMap)
	if err != nil {
		return err
	}
	if albedo.Sampler == nil {
		return fmt.Errorf("deferred: %s has no sampler", AlbedoMap)
	}

	module, err := env.Shaders.Module("gbuffer", gbufferShader)
	if err != nil {
		return err
	}

	// Binding 0: offscreen uniforms (vertex)
	// Binding 1: albedo map (fragment)
	// Binding 2: albedo sampler (fragment)
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "gbuffer_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create gbuffer bind group layout: %w", err)
	}
	obj.BindGroupLayouts = append(obj.BindGroupLayouts, layout)

	group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "gbuffer_bind_group",
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ubo.Buffer(0).NativeHandle(), Size: framegraph.UniformOffscreenSize}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: albedo.View.NativeHandle()}},
			{Binding: 2, Resource: gputypes.SamplerBinding{Sampler: albedo.Sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return fmt.Errorf("create gbuffer bind group: %w", err)
	}
	obj.BindGroups = append(obj.BindGroups, group)

	obj.PipelineLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "gbuffer_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("create gbuffer pipeline layout: %w", err)
	}

	targets := make([]gputypes.ColorTargetState, 0, len(gbufferTargets))
	for _, t := range gbufferTargets {
		targets = append(targets, gputypes.ColorTargetState{Format: t.format, WriteMask: gputypes.ColorWriteMaskAll})
	}
	keep := hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways}

	obj.Pipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "gbuffer_pipeline",
		Layout: obj.PipelineLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers:    vertexLayout(),
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeBack,
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            env.DepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLessEqual,
			StencilFront:      keep,
			StencilBack:       keep,
		},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets:    targets,
		},
	})
	if err != nil {
		return fmt.Errorf("create gbuffer pipeline: %w", err)
	}
	return nil
}

func recordGBuffer(g *framegraph.Graph, cmd hal.CommandEncoder, n *framegraph.Node, extent gputypes.Extent3D, primitives []framegraph.Primitive) error {
	store := g.Store()
	vb, err := framegraph.GetBufferResource[framegraph.Vertex](store, Vertices)
	if err != nil {
		return err
	}
	ib, err := framegraph.GetBufferResource[uint32](store, Indices)
	if err != nil {
		return err
	}

	colors := make([]hal.RenderPassColorAttachment, 0, len(gbufferTargets))
	for _, t := range gbufferTargets {
		img, err := store.GetImageResource(t.name)
		if err != nil {
			return err
		}
		colors = append(colors, hal.RenderPassColorAttachment{
			View:    img.View,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		})
	}
	depth, err := store.GetImageResource(Depth)
	if err != nil {
		return err
	}
	ds := &hal.RenderPassDepthStencilAttachment{
		View:            depth.View,
		DepthLoadOp:     gputypes.LoadOpClear,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: 1.0,
	}
	if depth.Format.HasStencil() {
		ds.StencilLoadOp = gputypes.LoadOpClear
		ds.StencilStoreOp = gputypes.StoreOpDiscard
	}

	rp := cmd.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  n.Name,
		ColorAttachments:       colors,
		DepthStencilAttachment: ds,
	})
	rp.SetViewport(0, 0, float32(extent.Width), float32(extent.Height), 0, 1)
	rp.SetPipeline(n.Objects.Pipeline)
	rp.SetBindGroup(0, n.Objects.BindGroups[0], nil)
	rp.SetVertexBuffer(0, vb.Buffer(0), 0)
	rp.SetIndexBuffer(ib.Buffer(0), gputypes.IndexFormatUint32, 0)
	for _, p := range primitives {
		rp.DrawIndexed(p.IndexCount, 1, p.FirstIndex, p.VertexOffset, 0)
	}
	rp.End()
	return nil
}
