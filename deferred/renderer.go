// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package deferred

import (
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/gpu"
	"github.com/gogpu/framegraph/shader"
)

// Renderer runs the configured passes on one device.
type Renderer struct {
	ctx     *gpu.Context
	cfg     *config.File
	graph   *framegraph.Graph
	env     *Env
	shaders *shader.Library

	registry      *gpucontext.Registry[Builder]
	metrics       *framegraph.Metrics
	shaderFormat  shader.Format
	submitTimeout time.Duration
	closed        bool
}

// Option configures New.
type Option func(*Renderer)

// WithRegistry replaces the built-in pass registry.
func WithRegistry(reg *gpucontext.Registry[Builder]) Option {
	return func(r *Renderer) { r.registry = reg }
}

// WithMetrics records node metrics into m.
func WithMetrics(m *framegraph.Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

// WithClock sets the camera's clock.
func WithClock(clock func() time.Time) Option {
	return func(r *Renderer) { r.env.Clock = clock }
}

// WithMesh replaces the default cube and plane.
func WithMesh(m Mesh) Option {
	return func(r *Renderer) { r.env.Mesh = m }
}

// WithMaxTextureSize bounds the albedo map's larger side.
func WithMaxTextureSize(n int) Option {
	return func(r *Renderer) { r.env.MaxTextureSize = n }
}

// WithShaderFormat selects how shaders reach the backend.
func WithShaderFormat(f shader.Format) Option {
	return func(r *Renderer) { r.shaderFormat = f }
}

// WithSubmitTimeout bounds how long RenderFrame waits for the GPU.
func WithSubmitTimeout(d time.Duration) Option {
	return func(r *Renderer) { r.submitTimeout = d }
}

// New builds a graph from cfg's pass list on ctx's device. A nil cfg uses
// config.Default sized to the default surface. The depth format is the
// first of cfg's depth_formats the adapter supports.
func New(ctx *gpu.Context, cfg *config.File, opts ...Option) (*Renderer, error) {
	if cfg == nil {
		cfg = config.Default(config.Surface{})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Renderer{
		ctx: ctx,
		cfg: cfg,
		env: &Env{
			Config:         cfg,
			Extent:         gputypes.Extent3D{Width: uint32(cfg.Width), Height: uint32(cfg.Height), DepthOrArrayLayers: 1},
			SurfaceFormat:  ctx.SurfaceFormat(),
			Mesh:           DefaultMesh(),
			MaxTextureSize: DefaultMaxTextureSize,
		},
		registry: Passes(),
	}
	for _, opt := range opts {
		opt(r)
	}

	candidates, err := cfg.DepthTextureFormats()
	if err != nil {
		return nil, err
	}
	r.env.DepthFormat, err = ctx.DepthFormat(candidates...)
	if err != nil {
		return nil, fmt.Errorf("deferred: %w", err)
	}

	device, queue := ctx.HAL()
	r.shaders = shader.NewLibrary(device, 0, shader.WithFormat(r.shaderFormat))
	r.env.Shaders = r.shaders
	r.graph = framegraph.New(
		framegraph.WithDevice(device, queue),
		framegraph.WithDependencyOrder(),
		framegraph.WithMetrics(r.metrics),
	)

	if err := r.build(); err != nil {
		r.Close()
		return nil, err
	}
	framegraph.Logger().Info("deferred: renderer ready",
		"passes", r.graph.NodeCount(),
		"extent", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"depth", r.env.DepthFormat.String(),
		"target", compositeFormat(r.env).String())
	return r, nil
}

func (r *Renderer) build() error {
	for _, p := range r.cfg.Passes {
		if !r.registry.Has(p.Kind) {
			return fmt.Errorf("%w: %q (pass %s)", ErrUnknownPass, p.Kind, p.Name)
		}
		node, err := r.registry.Get(p.Kind)(r.env, p.Name)
		if err != nil {
			return err
		}
		node.ShouldExecute = p.IsEnabled()
		if err := r.graph.AddNode(node); err != nil {
			return fmt.Errorf("deferred: add pass %s: %w", p.Name, err)
		}
	}
	return r.graph.Compile()
}

// Graph returns the renderer's frame graph.
func (r *Renderer) Graph() *framegraph.Graph { return r.graph }

// Env returns the state shared by the renderer's passes.
func (r *Renderer) Env() *Env { return r.env }

// RenderFrame records every enabled pass into one command buffer, submits
// it and waits for completion. A failed pass discards the frame.
func (r *Renderer) RenderFrame() error {
	if r.closed {
		return framegraph.ErrGraphReleased
	}
	frame, err := r.ctx.BeginFrame(fmt.Sprintf("frame_%d", r.graph.Frame()+1))
	if err != nil {
		return err
	}
	if err := r.graph.Execute(frame.Encoder()); err != nil {
		frame.Discard()
		return err
	}
	return frame.Submit(r.submitTimeout)
}

// Output returns the lighting pass's target once it has been produced.
func (r *Renderer) Output() (*framegraph.ImageResource, error) {
	return r.graph.Store().GetImageResource(Composite)
}

// Close releases the graph and the shader modules. The device stays open.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.graph.Release()
	r.shaders.Release()
}
