package shader

import (
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

const vertexSource = `
@vertex
fn main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

const fragmentSource = `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color;
}
`

const spirvMagic = 0x07230203

type trackingDevice struct {
	hal.Device

	mu        sync.Mutex
	created   []string
	destroyed int
}

func (d *trackingDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.mu.Lock()
	d.created = append(d.created, desc.Label)
	d.mu.Unlock()
	return d.Device.CreateShaderModule(desc)
}

func (d *trackingDevice) DestroyShaderModule(m hal.ShaderModule) {
	d.mu.Lock()
	d.destroyed++
	d.mu.Unlock()
	d.Device.DestroyShaderModule(m)
}

func newTrackingDevice(t *testing.T) *trackingDevice {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	return &trackingDevice{Device: open.Device}
}

func TestCompileWithOptions(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"vertex", vertexSource},
		{"fragment", fragmentSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := CompileWithOptions(tt.source, Options{})
			if err != nil {
				t.Fatalf("CompileWithOptions() = %v", err)
			}
			if len(words) < 5 {
				t.Fatalf("got %d words, want at least a 5-word header", len(words))
			}
			if words[0] != spirvMagic {
				t.Errorf("magic = 0x%08x, want 0x%08x", words[0], spirvMagic)
			}
		})
	}
}

func TestCompileInvalid(t *testing.T) {
	if _, err := Compile("fn broken( {"); err == nil {
		t.Error("Compile() of invalid WGSL succeeded")
	}
}

func TestLibraryCachesModules(t *testing.T) {
	dev := newTrackingDevice(t)
	lib := NewLibrary(dev, 0)

	first, err := lib.Module("tri", vertexSource)
	if err != nil {
		t.Fatal(err)
	}
	second, err := lib.Module("tri", vertexSource)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second Module() returned a different module")
	}
	if len(dev.created) != 1 {
		t.Errorf("created %d modules, want 1", len(dev.created))
	}

	// Same label, new source: a distinct module.
	if _, err := lib.Module("tri", fragmentSource); err != nil {
		t.Fatal(err)
	}
	if lib.Len() != 2 {
		t.Errorf("Len = %d, want 2", lib.Len())
	}

	lib.Release()
	if dev.destroyed != 2 || lib.Len() != 0 {
		t.Errorf("after Release: destroyed=%d len=%d", dev.destroyed, lib.Len())
	}
}

func TestLibraryEvictionDestroys(t *testing.T) {
	dev := newTrackingDevice(t)
	lib := NewLibrary(dev, 1)

	if _, err := lib.Module("a", vertexSource); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Module("b", vertexSource); err != nil {
		t.Fatal(err)
	}
	if dev.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", dev.destroyed)
	}
	if s := lib.Stats(); s.Evictions != 1 || s.Len != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestLibrarySPIRV(t *testing.T) {
	dev := newTrackingDevice(t)
	lib := NewLibrary(dev, 4, WithFormat(FormatSPIRV), WithCompileOptions(Options{}))

	if _, err := lib.Module("vs", vertexSource); err != nil {
		t.Fatalf("Module() = %v", err)
	}
	_, err := lib.Module("broken", "fn broken( {")
	if err == nil {
		t.Fatal("Module() of invalid WGSL succeeded")
	}
	if lib.Len() != 1 {
		t.Errorf("failed compile was cached")
	}
}

func TestFormatString(t *testing.T) {
	if FormatWGSL.String() != "wgsl" || FormatSPIRV.String() != "spirv" || Format(9).String() != "Format(9)" {
		t.Error("unexpected Format strings")
	}
}
