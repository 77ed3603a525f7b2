// Package deferred is a deferred-shading renderer built from frame graph
// nodes.
//
// The default graph has five passes:
//
//	geometry  -> Vertices, Indices
//	camera    -> OffscreenUniforms, LightingUniforms
//	albedo    -> AlbedoMap
//	gbuffer   -> Position, Normal, Albedo, Depth
//	lighting  -> Composite
//
// Pass kinds are looked up in a gpucontext.Registry, so callers can replace
// a kind or add new ones before building a Renderer.
package deferred

import (
	"embed"
	"errors"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/config"
	"github.com/gogpu/framegraph/shader"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

func mustShader(name string) string {
	b, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

var (
	gbufferShader  = mustShader("gbuffer.wgsl")
	lightingShader = mustShader("lighting.wgsl")
)

// Resource names shared between passes.
const (
	Vertices          = "Vertices"
	Indices           = "Indices"
	OffscreenUniforms = "OffscreenUniforms"
	LightingUniforms  = "LightingUniforms"
	AlbedoMap         = "AlbedoMap"
	Position          = "Position"
	Normal            = "Normal"
	Albedo            = "Albedo"
	Depth             = "Depth"
	Composite         = "Composite"
)

// G-buffer target formats.
const (
	PositionFormat = gputypes.TextureFormatRGBA16Float
	NormalFormat   = gputypes.TextureFormatRGBA16Float
	AlbedoFormat   = gputypes.TextureFormatRGBA8Unorm
)

// DefaultMaxTextureSize bounds the albedo map's larger side.
const DefaultMaxTextureSize = 2048

// ErrUnknownPass is returned when a configured pass kind is not registered.
var ErrUnknownPass = errors.New("deferred: unknown pass kind")

// Env is what pass builders share: the configuration, the render targets'
// shape and the scene.
type Env struct {
	Config  *config.File
	Shaders *shader.Library

	Extent        gputypes.Extent3D
	SurfaceFormat gputypes.TextureFormat
	DepthFormat   gputypes.TextureFormat

	Mesh           Mesh
	Clock          func() time.Time
	MaxTextureSize int
}

// Builder creates the node for one configured pass. name is the pass label.
type Builder func(env *Env, name string) (*framegraph.Node, error)

// Pass kinds, in dependency order.
const (
	KindGeometry = "geometry"
	KindCamera   = "camera"
	KindAlbedo   = "albedo"
	KindGBuffer  = "gbuffer"
	KindLighting = "lighting"
)

// Passes returns a registry holding the built-in pass kinds.
func Passes() *gpucontext.Registry[Builder] {
	reg := gpucontext.NewRegistry[Builder](
		gpucontext.WithPriority(KindGeometry, KindCamera, KindAlbedo, KindGBuffer, KindLighting),
	)
	reg.Register(KindGeometry, func() Builder { return buildGeometry })
	reg.Register(KindCamera, func() Builder { return buildCamera })
	reg.Register(KindAlbedo, func() Builder { return buildAlbedo })
	reg.Register(KindGBuffer, func() Builder { return buildGBuffer })
	reg.Register(KindLighting, func() Builder { return buildLighting })
	return reg
}
