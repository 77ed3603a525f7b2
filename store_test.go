package framegraph

import (
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func TestGetMissingResource(t *testing.T) {
	s := NewStore(nil)

	_, err := s.GetImageResource("DoesNotExist")
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("GetImageResource() = %v, want ErrResourceNotFound", err)
	}
	_, err = GetBufferResource[uint32](s, "DoesNotExist")
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("GetBufferResource() = %v, want ErrResourceNotFound", err)
	}
	var resErr *ResourceError
	if !errors.As(err, &resErr) || resErr.Name != "DoesNotExist" {
		t.Errorf("error %v does not name the resource", err)
	}
}

func TestBufferPayloadMismatch(t *testing.T) {
	s := NewStore(nil)
	if err := AddBufferResource(s, "Indices", &BufferResource[uint32]{Data: []uint32{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		get  func() error
		want string
	}{
		{"vertex", func() error { _, err := GetBufferResource[Vertex](s, "Indices"); return err }, "buffer[Vertex]"},
		{"uniform offscreen", func() error { _, err := GetBufferResource[UniformOffscreen](s, "Indices"); return err }, "buffer[UniformOffscreen]"},
		{"uniform final", func() error { _, err := GetBufferResource[UniformFinal](s, "Indices"); return err }, "buffer[UniformFinal]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.get()
			if !errors.Is(err, ErrResourceTypeMismatch) {
				t.Fatalf("got %v, want ErrResourceTypeMismatch", err)
			}
			var resErr *ResourceError
			if !errors.As(err, &resErr) {
				t.Fatalf("error is %T, want *ResourceError", err)
			}
			if resErr.Want != tt.want || resErr.Have != "buffer[uint32]" {
				t.Errorf("Want/Have = %q/%q, want %q/%q", resErr.Want, resErr.Have, tt.want, "buffer[uint32]")
			}
		})
	}

	// Images live in their own namespace.
	if _, err := s.GetImageResource("Indices"); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("GetImageResource(Indices) = %v, want ErrResourceNotFound", err)
	}

	// The failed lookups must not disturb the stored buffer.
	buf, err := GetBufferResource[uint32](s, "Indices")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(buf.Data, []uint32{1, 2, 3}) {
		t.Errorf("Data = %v", buf.Data)
	}
}

func TestResourceRoundTrip(t *testing.T) {
	s := NewStore(nil)

	vb := &BufferResource[Vertex]{
		ResourceInfo: ResourceInfo{Parent: "Geometry", Prepared: true},
		Size:         2 * VertexSize,
		Data: []Vertex{
			{Position: mgl32.Vec3{1, 2, 3}, Normal: mgl32.Vec3{0, 1, 0}, UV: mgl32.Vec2{0.5, 0.5}},
			{Position: mgl32.Vec3{-1, 0, 0}},
		},
	}
	want := *vb
	want.Data = slices.Clone(vb.Data)
	want.Name = "Vertices"

	if err := AddBufferResource(s, "Vertices", vb); err != nil {
		t.Fatal(err)
	}
	got, err := GetBufferResource[Vertex](s, "Vertices")
	if err != nil {
		t.Fatal(err)
	}
	if got != vb {
		t.Error("GetBufferResource returned a different pointer")
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip = %+v, want %+v", *got, want)
	}

	img := &ImageResource{ResourceInfo: ResourceInfo{Parent: "Albedo"}}
	if err := s.AddImageResource("Albedo", img); err != nil {
		t.Fatal(err)
	}
	gotImg, err := s.GetImageResource("Albedo")
	if err != nil {
		t.Fatal(err)
	}
	if gotImg != img || gotImg.Name != "Albedo" || gotImg.Parent != "Albedo" {
		t.Errorf("image round trip = %+v", gotImg)
	}
}

func TestImageAndBufferShareName(t *testing.T) {
	s := NewStore(nil)
	buf := &BufferResource[uint32]{Data: []uint32{7}}
	img := &ImageResource{ResourceInfo: ResourceInfo{Parent: "P"}}
	if err := AddBufferResource(s, "X", buf); err != nil {
		t.Fatal(err)
	}
	if err := s.AddImageResource("X", img); err != nil {
		t.Fatalf("AddImageResource over buffer name = %v", err)
	}

	gotImg, err := s.GetImageResource("X")
	if err != nil || gotImg != img {
		t.Errorf("GetImageResource(X) = %v, %v", gotImg, err)
	}
	gotBuf, err := GetBufferResource[uint32](s, "X")
	if err != nil || gotBuf != buf {
		t.Errorf("GetBufferResource(X) = %v, %v", gotBuf, err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if got := s.DescribeAll("X"); len(got) != 2 || got[0].Kind != KindImage || got[1].Kind != KindBuffer {
		t.Errorf("DescribeAll(X) = %+v", got)
	}
	if d, _ := s.Describe("X"); d.Kind != KindImage {
		t.Errorf("Describe(X).Kind = %v, want image", d.Kind)
	}

	// Both must be prepared before a consumer may read the name.
	if found, prepared := s.ready("X"); !found || prepared {
		t.Errorf("ready(X) = %v, %v before prepare", found, prepared)
	}
	s.markPrepared(img)
	if _, prepared := s.ready("X"); prepared {
		t.Error("ready(X) with unprepared buffer")
	}
	if err := s.MarkPrepared("X"); err != nil {
		t.Fatal(err)
	}
	if _, prepared := s.ready("X"); !prepared {
		t.Error("ready(X) after MarkPrepared")
	}

	if err := s.Remove("X"); err != nil {
		t.Fatal(err)
	}
	if s.Has("X") || s.Len() != 0 {
		t.Error("Remove(X) left a resource behind")
	}
}

func TestAddRejectsPayloadChange(t *testing.T) {
	s := NewStore(nil)
	if err := AddBufferResource(s, "Buf", &BufferResource[uint32]{}); err != nil {
		t.Fatal(err)
	}
	if err := AddBufferResource(s, "Buf", &BufferResource[Vertex]{}); !errors.Is(err, ErrResourceTypeMismatch) {
		t.Errorf("payload change = %v, want ErrResourceTypeMismatch", err)
	}
	if d, _ := s.Describe("Buf"); d.Type != "buffer[uint32]" {
		t.Errorf("type after rejected add = %q", d.Type)
	}
}

func TestPreparedFlagConcurrentReads(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	g := New(WithDevice(device, queue))
	n := &Node{Name: "P", Outputs: []string{"Buf"}}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				g.Store().Describe("Buf")
			}
		}
	}()
	for i := range 50 {
		if _, err := ProduceBuffer(g, n, BufferDesc[uint32]{Name: "Buf", Data: []uint32{uint32(i)}}); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	if d, _ := g.Store().Describe("Buf"); !d.Prepared {
		t.Error("Buf not prepared")
	}
}

func TestAddInvalid(t *testing.T) {
	s := NewStore(nil)
	tests := []struct {
		name string
		add  func() error
	}{
		{"empty name", func() error { return s.AddImageResource("", &ImageResource{}) }},
		{"nil image", func() error { return s.AddImageResource("x", nil) }},
		{"nil buffer", func() error { return AddBufferResource[uint32](s, "x", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.add(); !errors.Is(err, ErrInvalidResource) {
				t.Errorf("got %v, want ErrInvalidResource", err)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d after invalid adds", s.Len())
	}
}

func TestOverwriteReleasesOld(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}
	g := New(WithDevice(dev, queue))

	n := &Node{Name: "P", Outputs: []string{"Buf"}}
	first, err := ProduceBuffer(g, n, BufferDesc[uint32]{Name: "Buf", Data: []uint32{1}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ProduceBuffer(g, n, BufferDesc[uint32]{Name: "Buf", Data: []uint32{2}})
	if err != nil {
		t.Fatal(err)
	}

	if got := dev.count("buffer"); got != 1 {
		t.Errorf("buffers destroyed on overwrite = %d, want 1", got)
	}
	if first.Prepared {
		t.Error("replaced resource still marked prepared")
	}
	got, _ := GetBufferResource[uint32](g.Store(), "Buf")
	if got != second {
		t.Error("store does not hold the newer resource")
	}

	// Re-adding the same pointer is not an overwrite.
	if err := AddBufferResource(g.Store(), "Buf", second); err != nil {
		t.Fatal(err)
	}
	if got := dev.count("buffer"); got != 1 {
		t.Errorf("re-adding same resource destroyed buffers")
	}
}

func TestStoreNamesAndDescribe(t *testing.T) {
	s := NewStore(nil)
	_ = s.AddImageResource("A", &ImageResource{ResourceInfo: ResourceInfo{Parent: "pa"}})
	_ = AddBufferResource(s, "B", &BufferResource[Vertex]{})
	_ = AddBufferResource(s, "C", &BufferResource[uint32]{})
	// Overwrite moves A to the end.
	_ = s.AddImageResource("A", &ImageResource{ResourceInfo: ResourceInfo{Parent: "pb"}})

	if got, want := s.Names(), []string{"B", "C", "A"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	desc, ok := s.Describe("A")
	if !ok {
		t.Fatal("Describe(A) missing")
	}
	want := ResourceDesc{Name: "A", Parent: "pb", Kind: KindImage, Type: "image"}
	if desc != want {
		t.Errorf("Describe(A) = %+v, want %+v", desc, want)
	}
	if d, _ := s.Describe("B"); d.Kind != KindBuffer || d.Type != "buffer[Vertex]" {
		t.Errorf("Describe(B) = %+v", d)
	}
	if _, ok := s.Describe("missing"); ok {
		t.Error("Describe(missing) reported ok")
	}
}

func TestMarkPrepared(t *testing.T) {
	s := NewStore(nil)
	if err := s.MarkPrepared("x"); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("MarkPrepared(missing) = %v", err)
	}
	_ = AddBufferResource(s, "x", &BufferResource[uint32]{})
	if err := s.MarkPrepared("x"); err != nil {
		t.Fatal(err)
	}
	if d, _ := s.Describe("x"); !d.Prepared {
		t.Error("resource not prepared")
	}
}

func TestRemoveAndRelease(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}
	g := New(WithDevice(dev, queue))
	n := &Node{Name: "P", Outputs: []string{"Img", "Buf"}}

	if _, err := ProduceImage(g, n, ImageDesc{Name: "Img", Format: rgba8, Extent: extent(4, 4)}); err != nil {
		t.Fatal(err)
	}
	if _, err := ProduceBuffer(g, n, BufferDesc[uint32]{Name: "Buf", Capacity: 8, Copies: 3}); err != nil {
		t.Fatal(err)
	}

	s := g.Store()
	if err := s.Remove("Img"); err != nil {
		t.Fatal(err)
	}
	if dev.count("texture") != 1 || dev.count("view") != 1 {
		t.Errorf("Remove(Img) destroyed textures=%d views=%d", dev.count("texture"), dev.count("view"))
	}
	if s.Has("Img") {
		t.Error("Img still present")
	}
	if err := s.Remove("Img"); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("second Remove = %v", err)
	}

	s.Release()
	if got := dev.count("buffer"); got != 3 {
		t.Errorf("Release destroyed %d buffers, want 3", got)
	}
	if s.Len() != 0 || len(s.Names()) != 0 {
		t.Error("store not empty after Release")
	}
}

func TestExternalImageNotDestroyed(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dev := &countingDevice{Device: device}
	g := New(WithDevice(dev, queue))

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "swapchain",
		Size:          hal.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        rgba8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer device.DestroyTexture(tex)

	if err := ImportImage(g, "Swapchain", &ImageResource{Texture: tex, Format: rgba8}); err != nil {
		t.Fatal(err)
	}
	g.Release()
	if n := dev.count("texture") + dev.count("view"); n != 0 {
		t.Errorf("external image objects destroyed: %d", n)
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{KindImage: "image", KindBuffer: "buffer", Kind(0): "unknown"} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
