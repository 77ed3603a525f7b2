package framegraph

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// A node produces an index buffer in Setup; a later node reads it back
// from the store during Execute.
func TestProduceAndConsumeBuffer(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	g := New(WithDevice(device, queue))
	defer g.Release()

	mustAdd(t, g, &Node{
		Name:          "Producer",
		Outputs:       []string{"Buf"},
		ShouldExecute: true,
		Setup: func(g *Graph, n *Node) error {
			_, err := ProduceBuffer(g, n, BufferDesc[uint32]{
				Name:  "Buf",
				Usage: gputypes.BufferUsageIndex,
				Data:  []uint32{1, 2, 3},
			})
			return err
		},
	})

	var seen []uint32
	var gpu []byte
	mustAdd(t, g, &Node{
		Name:          "Consumer",
		Inputs:        []string{"Buf"},
		ShouldExecute: true,
		Execute: func(g *Graph, _ hal.CommandEncoder, _ *Node) error {
			buf, err := GetBufferResource[uint32](g.Store(), "Buf")
			if err != nil {
				return err
			}
			seen = slices.Clone(buf.Data)
			gpu = readBuffer(t, g.Device(), buf.Buffer(0), buf.Size)
			return nil
		},
	})

	if err := g.Execute(nil); err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if !slices.Equal(seen, []uint32{1, 2, 3}) {
		t.Errorf("consumer saw %v, want [1 2 3]", seen)
	}
	for i, want := range []uint32{1, 2, 3} {
		if got := binary.LittleEndian.Uint32(gpu[i*4:]); got != want {
			t.Errorf("gpu[%d] = %d, want %d", i, got, want)
		}
	}

	desc, _ := g.Store().Describe("Buf")
	if !desc.Prepared || desc.Parent != "Producer" {
		t.Errorf("Describe(Buf) = %+v", desc)
	}
}

func TestProduceBufferCopiesAndCapacity(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	g := New(WithDevice(device, queue))
	defer g.Release()
	n := &Node{Name: "P", Outputs: []string{"Uniforms"}}

	buf, err := ProduceBuffer(g, n, BufferDesc[UniformFinal]{
		Name:     "Uniforms",
		Usage:    gputypes.BufferUsageUniform,
		Capacity: 1,
		Copies:   3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Buffers) != 3 {
		t.Errorf("copies = %d, want 3", len(buf.Buffers))
	}
	if buf.Size != UniformFinalSize {
		t.Errorf("Size = %d, want %d", buf.Size, UniformFinalSize)
	}
	if buf.Usage&gputypes.BufferUsageCopyDst == 0 {
		t.Error("CopyDst not added to usage")
	}
	if buf.Buffer(3) != nil || buf.Buffer(-1) != nil {
		t.Error("Buffer() out of range should be nil")
	}
}

func TestProduceBufferErrors(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	tests := []struct {
		name    string
		graph   *Graph
		node    *Node
		desc    BufferDesc[uint32]
		wantErr error
	}{
		{"no device", New(), &Node{Name: "P", Outputs: []string{"B"}}, BufferDesc[uint32]{Name: "B", Data: []uint32{1}}, ErrNoDevice},
		{"nil node", New(WithDevice(device, queue)), nil, BufferDesc[uint32]{Name: "B", Data: []uint32{1}}, ErrInvalidNode},
		{"undeclared", New(WithDevice(device, queue)), &Node{Name: "P", Outputs: []string{"Other"}}, BufferDesc[uint32]{Name: "B", Data: []uint32{1}}, ErrUndeclaredOutput},
		{"empty", New(WithDevice(device, queue)), &Node{Name: "P", Outputs: []string{"B"}}, BufferDesc[uint32]{Name: "B"}, ErrInvalidResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProduceBuffer(tt.graph, tt.node, tt.desc)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ProduceBuffer() = %v, want %v", err, tt.wantErr)
			}
			if tt.graph.Store().Has("B") {
				t.Error("failed produce registered a resource")
			}
		})
	}
}

func TestUpdateBuffer(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	g := New(WithDevice(device, queue))
	defer g.Release()
	n := &Node{Name: "P", Outputs: []string{"Idx"}}

	buf, err := ProduceBuffer(g, n, BufferDesc[uint32]{Name: "Idx", Capacity: 4, Copies: 2})
	if err != nil {
		t.Fatal(err)
	}

	if err := UpdateBuffer(g, "Idx", 1, []uint32{7, 8}); err != nil {
		t.Fatalf("UpdateBuffer() = %v", err)
	}
	if !slices.Equal(buf.Data, []uint32{7, 8}) {
		t.Errorf("Data = %v", buf.Data)
	}
	raw := readBuffer(t, device, buf.Buffer(1), 8)
	if binary.LittleEndian.Uint32(raw) != 7 || binary.LittleEndian.Uint32(raw[4:]) != 8 {
		t.Errorf("copy 1 = %v", raw)
	}
	if untouched := readBuffer(t, device, buf.Buffer(0), 4); binary.LittleEndian.Uint32(untouched) != 0 {
		t.Errorf("copy 0 changed: %v", untouched)
	}

	if err := UpdateBuffer(g, "Idx", 2, []uint32{1}); !errors.Is(err, ErrInvalidResource) {
		t.Errorf("bad copy index = %v", err)
	}
	if err := UpdateBuffer(g, "Idx", 0, []uint32{1, 2, 3, 4, 5}); !errors.Is(err, ErrInvalidResource) {
		t.Errorf("overflow = %v", err)
	}
	if err := UpdateBuffer(g, "Idx", 0, []Vertex{{}}); !errors.Is(err, ErrResourceTypeMismatch) {
		t.Errorf("wrong payload = %v", err)
	}
}

func TestProduceImage(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}
	g := New(WithDevice(dev, queue))

	n := &Node{Name: "Albedo", Outputs: []string{"Albedo"}}
	pixels := make([]byte, 2*2*4)
	img, err := ProduceImage(g, n, ImageDesc{
		Name:        "Albedo",
		Format:      rgba8,
		Extent:      gputypes.Extent3D{Width: 2, Height: 2},
		Usage:       gputypes.TextureUsageTextureBinding,
		Sampler:     &hal.SamplerDescriptor{Label: "albedo", MagFilter: gputypes.FilterModeLinear, MinFilter: gputypes.FilterModeLinear},
		Data:        pixels,
		BytesPerRow: 8,
	})
	if err != nil {
		t.Fatalf("ProduceImage() = %v", err)
	}
	if img.Texture == nil || img.View == nil || img.Sampler == nil {
		t.Fatalf("image objects missing: %+v", img)
	}
	if !img.Prepared || img.Parent != "Albedo" {
		t.Errorf("image info = %+v", img.ResourceInfo)
	}
	if img.Extent.DepthOrArrayLayers != 1 {
		t.Errorf("depth = %d, want 1", img.Extent.DepthOrArrayLayers)
	}
	if img.Usage&gputypes.TextureUsageCopyDst == 0 {
		t.Error("CopyDst not added for initial data")
	}

	g.Release()
	if dev.count("sampler") != 1 || dev.count("view") != 1 || dev.count("texture") != 1 {
		t.Errorf("destroyed %v", dev.destroyed)
	}
	if want := []string{"sampler", "view", "texture"}; !slices.Equal(dev.destroyed, want) {
		t.Errorf("destroy order = %v, want %v", dev.destroyed, want)
	}
}

func TestProduceImageZeroExtent(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	g := New(WithDevice(device, queue))
	n := &Node{Name: "P", Outputs: []string{"Img"}}
	_, err := ProduceImage(g, n, ImageDesc{Name: "Img", Format: rgba8})
	if !errors.Is(err, ErrInvalidResource) {
		t.Errorf("ProduceImage() = %v, want ErrInvalidResource", err)
	}
}

func TestImportImage(t *testing.T) {
	g := New()
	if err := ImportImage(g, "Swapchain", nil); !errors.Is(err, ErrInvalidResource) {
		t.Errorf("ImportImage(nil) = %v", err)
	}
	img := &ImageResource{}
	if err := ImportImage(g, "Swapchain", img); err != nil {
		t.Fatal(err)
	}
	if !img.External || !img.Prepared || img.Parent != "" {
		t.Errorf("imported image = %+v", img.ResourceInfo)
	}
}
