// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ImageDesc describes an image resource for ProduceImage.
type ImageDesc struct {
	Name   string
	Format gputypes.TextureFormat
	// Extent of the image. A zero DepthOrArrayLayers is treated as 1.
	Extent gputypes.Extent3D
	// Usage defaults to RenderAttachment|TextureBinding. CopyDst is added
	// when Data is set.
	Usage gputypes.TextureUsage
	// Aspect of the default view. Defaults to TextureAspectAll.
	Aspect gputypes.TextureAspect

	// Sampler, if set, is created and stored with the image.
	Sampler *hal.SamplerDescriptor

	// Data is uploaded to mip level 0 when non-empty. BytesPerRow must
	// then describe its row pitch.
	Data        []byte
	BytesPerRow uint32
}

// BufferDesc describes a buffer resource for ProduceBuffer.
type BufferDesc[T Payload] struct {
	Name  string
	Usage gputypes.BufferUsage
	// Data is uploaded to every copy and kept as the CPU mirror.
	Data []T
	// Capacity is the element count each buffer is sized for. Defaults to
	// len(Data).
	Capacity int
	// Copies is the number of GPU buffers to create. Defaults to 1.
	Copies int
}

// ProduceImage allocates a texture and view for one of n's declared outputs,
// uploads optional initial data, registers the result in the graph's store
// and marks it prepared.
func ProduceImage(g *Graph, n *Node, d ImageDesc) (*ImageResource, error) {
	if err := checkProducer(g, n, d.Name); err != nil {
		return nil, err
	}
	device := g.device

	extent := d.Extent
	if extent.DepthOrArrayLayers == 0 {
		extent.DepthOrArrayLayers = 1
	}
	if extent.Width == 0 || extent.Height == 0 {
		return nil, &ResourceError{Name: d.Name, Op: "produce", Err: fmt.Errorf("%w: zero extent", ErrInvalidResource)}
	}
	usage := d.Usage
	if usage == 0 {
		usage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	}
	if len(d.Data) > 0 {
		usage |= gputypes.TextureUsageCopyDst
	}
	aspect := d.Aspect
	if aspect == 0 {
		aspect = gputypes.TextureAspectAll
	}

	img := &ImageResource{
		ResourceInfo: ResourceInfo{Name: d.Name, Parent: n.Name},
		Format:       d.Format,
		Extent:       extent,
		Usage:        usage,
	}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         d.Name,
		Size:          hal.Extent3D{Width: extent.Width, Height: extent.Height, DepthOrArrayLayers: extent.DepthOrArrayLayers},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        d.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", d.Name, err)
	}
	img.Texture = tex

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           d.Name + "_view",
		Format:          d.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		img.release(device)
		return nil, fmt.Errorf("create texture view %q: %w", d.Name, err)
	}
	img.View = view

	if d.Sampler != nil {
		sampler, err := device.CreateSampler(d.Sampler)
		if err != nil {
			img.release(device)
			return nil, fmt.Errorf("create sampler %q: %w", d.Name, err)
		}
		img.Sampler = sampler
	}

	if len(d.Data) > 0 {
		if g.queue == nil {
			img.release(device)
			return nil, ErrNoDevice
		}
		err := g.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: tex, Aspect: aspect},
			d.Data,
			&hal.ImageDataLayout{BytesPerRow: d.BytesPerRow, RowsPerImage: extent.Height},
			&hal.Extent3D{Width: extent.Width, Height: extent.Height, DepthOrArrayLayers: extent.DepthOrArrayLayers},
		)
		if err != nil {
			img.release(device)
			return nil, fmt.Errorf("upload texture %q: %w", d.Name, err)
		}
	}

	if err := g.store.AddImageResource(d.Name, img); err != nil {
		img.release(device)
		return nil, err
	}
	g.store.markPrepared(img)
	return img, nil
}

// ProduceBuffer allocates GPU buffers for one of n's declared outputs,
// uploads d.Data to each copy, registers the result and marks it prepared.
func ProduceBuffer[T Payload](g *Graph, n *Node, d BufferDesc[T]) (*BufferResource[T], error) {
	if err := checkProducer(g, n, d.Name); err != nil {
		return nil, err
	}
	if g.queue == nil {
		return nil, ErrNoDevice
	}
	device := g.device

	capacity := max(d.Capacity, len(d.Data))
	if capacity == 0 {
		return nil, &ResourceError{Name: d.Name, Op: "produce", Err: fmt.Errorf("%w: empty buffer", ErrInvalidResource)}
	}
	copies := max(d.Copies, 1)
	size := uint64(capacity) * PayloadSize[T]()
	usage := d.Usage | gputypes.BufferUsageCopyDst

	buf := &BufferResource[T]{
		ResourceInfo: ResourceInfo{Name: d.Name, Parent: n.Name},
		Size:         size,
		Usage:        usage,
		Data:         append([]T(nil), d.Data...),
	}

	payload := EncodePayload(d.Data)
	for i := range copies {
		b, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("%s[%d]", d.Name, i),
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			buf.release(device)
			return nil, fmt.Errorf("create buffer %q: %w", d.Name, err)
		}
		buf.Buffers = append(buf.Buffers, b)

		if len(payload) > 0 {
			if err := g.queue.WriteBuffer(b, 0, payload); err != nil {
				buf.release(device)
				return nil, fmt.Errorf("upload buffer %q: %w", d.Name, err)
			}
		}
	}

	if err := AddBufferResource(g.store, d.Name, buf); err != nil {
		buf.release(device)
		return nil, err
	}
	g.store.markPrepared(buf)
	return buf, nil
}

// UpdateBuffer replaces the CPU mirror of the named buffer with data and
// writes it to GPU copy index. The buffer must have room for data.
func UpdateBuffer[T Payload](g *Graph, name string, index int, data []T) error {
	if g.queue == nil {
		return ErrNoDevice
	}
	buf, err := GetBufferResource[T](g.store, name)
	if err != nil {
		return err
	}
	target := buf.Buffer(index)
	if target == nil {
		return &ResourceError{Name: name, Op: "update", Err: fmt.Errorf("%w: copy %d of %d", ErrInvalidResource, index, len(buf.Buffers))}
	}
	payload := EncodePayload(data)
	if uint64(len(payload)) > buf.Size {
		return &ResourceError{Name: name, Op: "update", Err: fmt.Errorf("%w: %d bytes exceeds capacity %d", ErrInvalidResource, len(payload), buf.Size)}
	}
	if err := g.queue.WriteBuffer(target, 0, payload); err != nil {
		return fmt.Errorf("update buffer %q: %w", name, err)
	}
	buf.Data = append(buf.Data[:0], data...)
	return nil
}

// ImportImage registers an image whose GPU objects are owned outside the
// graph, such as a swapchain texture. It is marked prepared and external.
func ImportImage(g *Graph, name string, img *ImageResource) error {
	if img == nil {
		return &ResourceError{Name: name, Op: "add", Err: ErrInvalidResource}
	}
	img.External = true
	if err := g.store.AddImageResource(name, img); err != nil {
		return err
	}
	g.store.markPrepared(img)
	return nil
}

func checkProducer(g *Graph, n *Node, name string) error {
	if g.device == nil {
		return ErrNoDevice
	}
	if n == nil {
		return fmt.Errorf("produce %q: %w", name, ErrInvalidNode)
	}
	if !n.Produces(name) {
		return &NodeError{Node: n.Name, Phase: PhaseSetup, Err: fmt.Errorf("%w: %q", ErrUndeclaredOutput, name)}
	}
	return nil
}
