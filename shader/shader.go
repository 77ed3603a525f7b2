// Package shader compiles WGSL and caches the resulting shader modules per
// device.
package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/internal/cache"
)

// Options configures WGSL compilation.
type Options struct {
	// Validate runs naga's IR validator before code generation.
	Validate bool
	// Debug emits OpName/OpLine debug info.
	Debug bool
}

// Compile translates WGSL source to SPIR-V words with validation enabled.
func Compile(source string) ([]uint32, error) {
	return CompileWithOptions(source, Options{Validate: true})
}

// CompileWithOptions translates WGSL source to SPIR-V words.
func CompileWithOptions(source string, opts Options) ([]uint32, error) {
	nopts := naga.DefaultOptions()
	nopts.Validate = opts.Validate
	nopts.Debug = opts.Debug

	code, err := naga.CompileWithOptions(source, nopts)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("shader: compile: SPIR-V length %d is not a multiple of 4", len(code))
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words, nil
}

// Format selects how a Library hands shader code to the backend.
type Format uint8

const (
	// FormatWGSL passes the WGSL text through; the backend compiles it.
	FormatWGSL Format = iota
	// FormatSPIRV compiles with naga first and passes SPIR-V words.
	FormatSPIRV
)

func (f Format) String() string {
	switch f {
	case FormatWGSL:
		return "wgsl"
	case FormatSPIRV:
		return "spirv"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// DefaultCapacity is the number of modules a Library keeps by default.
const DefaultCapacity = 64

type key struct {
	label string
	sum   uint64
}

// Library creates shader modules on one device and caches them by label and
// source. Modules evicted from the cache, or dropped by Release, are
// destroyed. Pipelines already built from an evicted module stay valid.
type Library struct {
	device  hal.Device
	format  Format
	opts    Options
	modules *cache.Cache[key, hal.ShaderModule]
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithFormat selects WGSL pass-through or SPIR-V compilation.
func WithFormat(f Format) LibraryOption {
	return func(l *Library) { l.format = f }
}

// WithCompileOptions sets the naga options used with FormatSPIRV.
func WithCompileOptions(opts Options) LibraryOption {
	return func(l *Library) { l.opts = opts }
}

// NewLibrary creates a library holding at most capacity modules. A
// non-positive capacity uses DefaultCapacity.
func NewLibrary(device hal.Device, capacity int, opts ...LibraryOption) *Library {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Library{
		device: device,
		opts:   Options{Validate: true},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.modules = cache.New(capacity, func(k key, m hal.ShaderModule) {
		framegraph.Logger().Debug("shader: module destroyed", "label", k.label)
		device.DestroyShaderModule(m)
	})
	return l
}

// Module returns the module for label built from source, creating it on
// first use.
func (l *Library) Module(label, source string) (hal.ShaderModule, error) {
	k := key{label: label, sum: xxhash.Sum64String(source)}
	return l.modules.GetOrCreate(k, func() (hal.ShaderModule, error) {
		src := hal.ShaderSource{WGSL: source}
		if l.format == FormatSPIRV {
			words, err := CompileWithOptions(source, l.opts)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			src = hal.ShaderSource{SPIRV: words}
		}

		m, err := l.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  label,
			Source: src,
		})
		if err != nil {
			return nil, fmt.Errorf("shader: create module %s: %w", label, err)
		}
		framegraph.Logger().Debug("shader: module created", "label", label, "format", l.format.String())
		return m, nil
	})
}

// Len returns the number of cached modules.
func (l *Library) Len() int { return l.modules.Len() }

// Stats returns cache statistics.
func (l *Library) Stats() cache.Stats { return l.modules.Stats() }

// Release destroys every cached module.
func (l *Library) Release() { l.modules.Clear() }
