package deferred

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/config"
)

func buildGeometry(env *Env, name string) (*framegraph.Node, error) {
	if len(env.Mesh.Vertices) == 0 || len(env.Mesh.Indices) == 0 {
		return nil, fmt.Errorf("deferred: pass %s: empty mesh", name)
	}
	mesh := env.Mesh
	return &framegraph.Node{
		Name:          name,
		Outputs:       []string{Vertices, Indices},
		ShouldExecute: true,
		Setup: func(g *framegraph.Graph, n *framegraph.Node) error {
			if _, err := framegraph.ProduceBuffer(g, n, framegraph.BufferDesc[framegraph.Vertex]{
				Name:  Vertices,
				Usage: gputypes.BufferUsageVertex,
				Data:  mesh.Vertices,
			}); err != nil {
				return err
			}
			_, err := framegraph.ProduceBuffer(g, n, framegraph.BufferDesc[uint32]{
				Name:  Indices,
				Usage: gputypes.BufferUsageIndex,
				Data:  mesh.Indices,
			})
			return err
		},
	}, nil
}

// Camera derives the per-frame uniforms from the configuration and a clock.
type Camera struct {
	Eye, Target, Up mgl32.Vec3

	// Fov is the vertical field of view in radians.
	Fov    float32
	Near   float32
	Far    float32
	Aspect float32

	// Spin rotates the world about +Y, in radians per second.
	Spin float32

	clock func() time.Time
	last  time.Time
	angle float32
}

// NewCamera builds a camera from cfg. A nil clock uses time.Now.
func NewCamera(cfg *config.Camera, extent gputypes.Extent3D, clock func() time.Time) *Camera {
	if clock == nil {
		clock = time.Now
	}
	return &Camera{
		Eye:    vec3(cfg.Eye),
		Target: vec3(cfg.Target),
		Up:     vec3(cfg.Up),
		Fov:    mgl32.DegToRad(float32(cfg.Fov)),
		Near:   float32(cfg.Near),
		Far:    float32(cfg.Far),
		Aspect: float32(extent.Width) / float32(extent.Height),
		Spin:   float32(cfg.Spin),
		clock:  clock,
	}
}

// Start resets the camera's time origin.
func (c *Camera) Start() { c.last = c.clock() }

// Advance moves the clock forward and returns the frame's uniforms.
func (c *Camera) Advance() framegraph.UniformOffscreen {
	now := c.clock()
	dt := float32(now.Sub(c.last).Seconds())
	c.last = now
	c.angle += c.Spin * dt
	u := c.Uniforms()
	u.DeltaTime = dt
	return u
}

// Uniforms returns the uniforms at the current angle with a zero DeltaTime.
func (c *Camera) Uniforms() framegraph.UniformOffscreen {
	world := mgl32.HomogRotate3DY(c.angle)
	return framegraph.UniformOffscreen{
		World:      world,
		View:       mgl32.LookAtV(c.Eye, c.Target, c.Up),
		Projection: mgl32.Perspective(c.Fov, c.Aspect, c.Near, c.Far),
		Inverse:    world.Inv(),
	}
}

// LightUniforms builds the lighting pass's uniform block. Unused light
// slots have a zero radius.
func LightUniforms(cfg *config.File) framegraph.UniformFinal {
	var u framegraph.UniformFinal
	for i, l := range cfg.Lights {
		if i == framegraph.MaxLights {
			break
		}
		u.Lights[i] = framegraph.Light{
			Position: vec4(l.Position),
			Color:    vec3(l.Color),
			Radius:   float32(l.Radius),
		}
	}
	u.View = vec3(cfg.Camera.Eye).Vec4(1)
	return u
}

func buildCamera(env *Env, name string) (*framegraph.Node, error) {
	cam := NewCamera(env.Config.Camera, env.Extent, env.Clock)
	lighting := LightUniforms(env.Config)

	return &framegraph.Node{
		Name:          name,
		Outputs:       []string{OffscreenUniforms, LightingUniforms},
		ShouldExecute: true,
		Setup: func(g *framegraph.Graph, n *framegraph.Node) error {
			cam.Start()
			if _, err := framegraph.ProduceBuffer(g, n, framegraph.BufferDesc[framegraph.UniformOffscreen]{
				Name:  OffscreenUniforms,
				Usage: gputypes.BufferUsageUniform,
				Data:  []framegraph.UniformOffscreen{cam.Uniforms()},
			}); err != nil {
				return err
			}
			_, err := framegraph.ProduceBuffer(g, n, framegraph.BufferDesc[framegraph.UniformFinal]{
				Name:  LightingUniforms,
				Usage: gputypes.BufferUsageUniform,
				Data:  []framegraph.UniformFinal{lighting},
			})
			return err
		},
		Execute: func(g *framegraph.Graph, _ hal.CommandEncoder, _ *framegraph.Node) error {
			return framegraph.UpdateBuffer(g, OffscreenUniforms, 0, []framegraph.UniformOffscreen{cam.Advance()})
		},
	}, nil
}

func vec3(v []float64) mgl32.Vec3 {
	var out mgl32.Vec3
	for i := range min(len(v), 3) {
		out[i] = float32(v[i])
	}
	return out
}

func vec4(v []float64) mgl32.Vec4 {
	var out mgl32.Vec4
	for i := range min(len(v), 4) {
		out[i] = float32(v[i])
	}
	return out
}
