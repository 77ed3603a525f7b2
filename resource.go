package framegraph

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Kind is the storage shape of a resource.
type Kind uint8

const (
	KindImage Kind = iota + 1
	KindBuffer
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// ResourceInfo holds the attributes every resource carries.
type ResourceInfo struct {
	// Name is the key in the Store, unique within its kind.
	Name string
	// Parent is the name of the node that produced the resource, or empty
	// for resources imported from outside the graph.
	Parent string
	// Prepared reports that the GPU backing is fully created and populated.
	// Consumers must not read a resource until it is set.
	Prepared bool
}

// resource is the sealed variant stored in a Store. It is implemented only
// by *ImageResource and *BufferResource[T] for the Payload types.
type resource interface {
	info() *ResourceInfo
	kind() Kind
	typeName() string
	release(device hal.Device)
}

// ImageResource is a GPU texture with its default view.
type ImageResource struct {
	ResourceInfo

	Texture hal.Texture
	View    hal.TextureView
	// Sampler is optional; producers attach one when consumers are expected
	// to sample the image with fixed filtering.
	Sampler hal.Sampler

	Format gputypes.TextureFormat
	Extent gputypes.Extent3D
	Usage  gputypes.TextureUsage

	// External marks images whose GPU objects are owned elsewhere (for
	// example a swapchain texture). Release leaves them untouched.
	External bool
}

func (r *ImageResource) info() *ResourceInfo { return &r.ResourceInfo }
func (r *ImageResource) kind() Kind          { return KindImage }
func (r *ImageResource) typeName() string    { return "image" }

func (r *ImageResource) release(device hal.Device) {
	if r.External || device == nil {
		return
	}
	if r.Sampler != nil {
		device.DestroySampler(r.Sampler)
		r.Sampler = nil
	}
	if r.View != nil {
		device.DestroyTextureView(r.View)
		r.View = nil
	}
	if r.Texture != nil {
		device.DestroyTexture(r.Texture)
		r.Texture = nil
	}
	r.Prepared = false
}

// BufferResource is one or more GPU buffers holding elements of T, plus an
// optional CPU mirror of the data last written.
type BufferResource[T Payload] struct {
	ResourceInfo

	// Buffers holds one buffer per copy (for example one per frame in
	// flight). All have the same Size.
	Buffers []hal.Buffer
	Size    uint64
	Usage   gputypes.BufferUsage

	// Data mirrors the last contents written through ProduceBuffer or
	// UpdateBuffer.
	Data []T
}

// Buffer returns the i-th GPU buffer, or nil if out of range.
func (r *BufferResource[T]) Buffer(i int) hal.Buffer {
	if i < 0 || i >= len(r.Buffers) {
		return nil
	}
	return r.Buffers[i]
}

// Len returns the number of mirrored elements.
func (r *BufferResource[T]) Len() int { return len(r.Data) }

func (r *BufferResource[T]) info() *ResourceInfo { return &r.ResourceInfo }
func (r *BufferResource[T]) kind() Kind          { return KindBuffer }
func (r *BufferResource[T]) typeName() string    { return "buffer[" + payloadName[T]() + "]" }

func (r *BufferResource[T]) release(device hal.Device) {
	if device == nil {
		return
	}
	for i := len(r.Buffers) - 1; i >= 0; i-- {
		if r.Buffers[i] != nil {
			device.DestroyBuffer(r.Buffers[i])
		}
	}
	r.Buffers = nil
	r.Prepared = false
}

// ResourceDesc is a read-only summary of a stored resource, used for
// diagnostics and dependency checks.
type ResourceDesc struct {
	Name     string
	Parent   string
	Kind     Kind
	Type     string
	Prepared bool
}
