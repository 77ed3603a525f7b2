// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

// compositeFormat is the lighting target format: the surface format, or
// BGRA8 for headless contexts.
func compositeFormat(env *Env) gputypes.TextureFormat {
	if env.SurfaceFormat == gputypes.TextureFormatUndefined {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return env.SurfaceFormat
}

func buildLighting(env *Env, name string) (*framegraph.Node, error) {
	format := compositeFormat(env)
	extent := env.Extent

	return &framegraph.Node{
		Name:          name,
		Inputs:        []string{Position, Normal, Albedo, LightingUniforms},
		Outputs:       []string{Composite},
		ShouldExecute: true,
		Setup: func(g *framegraph.Graph, n *framegraph.Node) error {
			if _, err := framegraph.ProduceImage(g, n, framegraph.ImageDesc{
				Name:   Composite,
				Format: format,
				Extent: extent,
				Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc,
			}); err != nil {
				return err
			}
			return setupLightingPipeline(g, n, env, format)
		},
		Execute: func(g *framegraph.Graph, cmd hal.CommandEncoder, n *framegraph.Node) error {
			return recordLighting(g, cmd, n, extent)
		},
	}, nil
}

// gbufferSampler reads the G-buffer texel for texel. It is bound as a
// non-filtering sampler, so every filter must be nearest.
func gbufferSampler() *hal.SamplerDescriptor {
	return &hal.SamplerDescriptor{
		Label:        "lighting_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  1,
	}
}

func setupLightingPipeline(g *framegraph.Graph, n *framegraph.Node, env *Env, format gputypes.TextureFormat) error {
	device := g.Device()
	store := g.Store()
	obj := &n.Objects

	ubo, err := framegraph.GetBufferResource[framegraph.UniformFinal](store, LightingUniforms)
	if err != nil {
		return err
	}

	sampler, err := device.CreateSampler(gbufferSampler())
	if err != nil {
		return fmt.Errorf("create lighting sampler: %w", err)
	}
	obj.Samplers = append(obj.Samplers, sampler)

	module, err := env.Shaders.Module("lighting", lightingShader)
	if err != nil {
		return err
	}

	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	groupEntries := []gputypes.BindGroupEntry{{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: ubo.Buffer(0).NativeHandle(), Size: framegraph.UniformFinalSize},
	}}
	for i, t := range gbufferTargets {
		img, err := store.GetImageResource(t.name)
		if err != nil {
			return err
		}
		binding := uint32(i + 1)
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
		groupEntries = append(groupEntries, gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.TextureViewBinding{TextureView: img.View.NativeHandle()},
		})
	}
	samplerBinding := uint32(len(gbufferTargets) + 1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    samplerBinding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeNonFiltering},
	})
	groupEntries = append(groupEntries, gputypes.BindGroupEntry{
		Binding:  samplerBinding,
		Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
	})

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "lighting_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create lighting bind group layout: %w", err)
	}
	obj.BindGroupLayouts = append(obj.BindGroupLayouts, layout)

	group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "lighting_bind_group",
		Layout:  layout,
		Entries: groupEntries,
	})
	if err != nil {
		return fmt.Errorf("create lighting bind group: %w", err)
	}
	obj.BindGroups = append(obj.BindGroups, group)

	obj.PipelineLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "lighting_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("create lighting pipeline layout: %w", err)
	}

	obj.Pipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "lighting_pipeline",
		Layout: obj.PipelineLayout,
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets:    []gputypes.ColorTargetState{{Format: format, WriteMask: gputypes.ColorWriteMaskAll}},
		},
	})
	if err != nil {
		return fmt.Errorf("create lighting pipeline: %w", err)
	}
	return nil
}

// gbufferBarriers moves the G-buffer color targets between attachment and
// sampled use.
func gbufferBarriers(store *framegraph.Store, from, to gputypes.TextureUsage) ([]hal.TextureBarrier, error) {
	barriers := make([]hal.TextureBarrier, 0, len(gbufferTargets))
	for _, t := range gbufferTargets {
		img, err := store.GetImageResource(t.name)
		if err != nil {
			return nil, err
		}
		barriers = append(barriers, hal.TextureBarrier{
			Texture: img.Texture,
			Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll, MipLevelCount: 1, ArrayLayerCount: 1},
			Usage:   hal.TextureUsageTransition{OldUsage: from, NewUsage: to},
		})
	}
	return barriers, nil
}

func recordLighting(g *framegraph.Graph, cmd hal.CommandEncoder, n *framegraph.Node, extent gputypes.Extent3D) error {
	store := g.Store()
	target, err := store.GetImageResource(Composite)
	if err != nil {
		return err
	}
	toSampled, err := gbufferBarriers(store, gputypes.TextureUsageRenderAttachment, gputypes.TextureUsageTextureBinding)
	if err != nil {
		return err
	}
	toAttachment, err := gbufferBarriers(store, gputypes.TextureUsageTextureBinding, gputypes.TextureUsageRenderAttachment)
	if err != nil {
		return err
	}

	cmd.TransitionTextures(toSampled)
	rp := cmd.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: n.Name,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.View,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{A: 1},
		}},
	})
	rp.SetViewport(0, 0, float32(extent.Width), float32(extent.Height), 0, 1)
	rp.SetPipeline(n.Objects.Pipeline)
	rp.SetBindGroup(0, n.Objects.BindGroups[0], nil)
	rp.Draw(3, 1, 0, 0) // full-screen triangle
	rp.End()
	cmd.TransitionTextures(toAttachment)
	return nil
}
