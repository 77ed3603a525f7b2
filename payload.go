package framegraph

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Payload is the closed set of element types a BufferResource may hold.
// Adding a type here means adding a case to EncodePayload, PayloadSize and
// payloadName.
type Payload interface {
	UniformOffscreen | UniformFinal | Vertex | uint32
}

// Byte sizes of each payload element in GPU memory. Uniform structs are
// padded to 16-byte multiples.
const (
	VertexSize           = 32
	IndexSize            = 4
	LightSize            = 32
	UniformOffscreenSize = 272
	UniformFinalSize     = 144
)

// MaxLights is the number of light slots in UniformFinal.
const MaxLights = 4

// Vertex is an interleaved mesh vertex.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

// UniformOffscreen is the per-frame uniform block of the G-buffer pass.
type UniformOffscreen struct {
	World      mgl32.Mat4
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Inverse    mgl32.Mat4 // inverse of World, for normal transforms
	DeltaTime  float32
}

// Light is a point light. Radius bounds its attenuation.
type Light struct {
	Position mgl32.Vec4
	Color    mgl32.Vec3
	Radius   float32
}

// UniformFinal is the uniform block of the lighting (composition) pass.
type UniformFinal struct {
	Lights [MaxLights]Light
	View   mgl32.Vec4 // camera position in world space
}

// Primitive describes one indexed draw inside a vertex/index buffer pair.
type Primitive struct {
	FirstIndex    uint32
	IndexCount    uint32
	VertexOffset  int32
	VertexCount   uint32
	MaterialIndex int
}

// PayloadSize returns the GPU byte size of one element of T.
func PayloadSize[T Payload]() uint64 {
	var zero T
	switch any(zero).(type) {
	case Vertex:
		return VertexSize
	case UniformOffscreen:
		return UniformOffscreenSize
	case UniformFinal:
		return UniformFinalSize
	default:
		return IndexSize
	}
}

func payloadName[T Payload]() string {
	var zero T
	switch any(zero).(type) {
	case Vertex:
		return "Vertex"
	case UniformOffscreen:
		return "UniformOffscreen"
	case UniformFinal:
		return "UniformFinal"
	default:
		return "uint32"
	}
}

// EncodePayload returns data in the little-endian layout the shaders expect.
func EncodePayload[T Payload](data []T) []byte {
	out := make([]byte, 0, uint64(len(data))*PayloadSize[T]())
	switch d := any(data).(type) {
	case []Vertex:
		for i := range d {
			out = appendFloats(out, d[i].Position[:]...)
			out = appendFloats(out, d[i].Normal[:]...)
			out = appendFloats(out, d[i].UV[:]...)
		}
	case []uint32:
		for _, v := range d {
			out = binary.LittleEndian.AppendUint32(out, v)
		}
	case []UniformOffscreen:
		for i := range d {
			out = appendFloats(out, d[i].World[:]...)
			out = appendFloats(out, d[i].View[:]...)
			out = appendFloats(out, d[i].Projection[:]...)
			out = appendFloats(out, d[i].Inverse[:]...)
			out = appendFloats(out, d[i].DeltaTime, 0, 0, 0)
		}
	case []UniformFinal:
		for i := range d {
			for _, l := range d[i].Lights {
				out = appendFloats(out, l.Position[:]...)
				out = appendFloats(out, l.Color[:]...)
				out = appendFloats(out, l.Radius)
			}
			out = appendFloats(out, d[i].View[:]...)
		}
	}
	return out
}

func appendFloats(b []byte, fs ...float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}
