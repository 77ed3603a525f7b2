// Package config loads renderer settings from an HCL file.
//
// Attribute expressions may refer to the target surface:
//
//	schema_version = "1.0.0"
//	width          = surface.width / 2
//	height         = surface.height / 2
//	depth_formats  = ["depth32float-stencil8", "depth24plus"]
//
//	camera {
//	  eye    = [0, 3, -1.5]
//	  target = [0, 0, 0]
//	  fov    = 65
//	}
//
//	light "key" {
//	  position = [0, 2, 0, 1]
//	  color    = [1, 1, 1]
//	  radius   = 5
//	}
//
//	pass "gbuffer" {}
//	pass "lighting" { enabled = false }
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gogpu/gputypes"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/gogpu/framegraph"
)

// SchemaVersion is the version written by this package's defaults.
const SchemaVersion = "1.0.0"

// SchemaConstraint is the range of schema versions this package reads.
const SchemaConstraint = ">= 1.0.0, < 2.0.0"

var (
	// ErrUnsupportedSchema is returned when schema_version is missing from
	// SchemaConstraint or is not a semantic version.
	ErrUnsupportedSchema = errors.New("config: unsupported schema version")

	// ErrInvalid is wrapped by every other validation failure.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Surface is the drawable the configuration is evaluated against. Its size
// is visible to expressions as surface.width and surface.height, and is the
// default render extent.
type Surface struct {
	Width  uint32
	Height uint32
}

// DefaultSurface is used when a zero Surface is passed to Load or Parse.
var DefaultSurface = Surface{Width: 1280, Height: 720}

// File is a decoded configuration.
type File struct {
	SchemaVersion string   `hcl:"schema_version,optional"`
	Frames        int      `hcl:"frames,optional"`
	Width         int      `hcl:"width,optional"`
	Height        int      `hcl:"height,optional"`
	DepthFormats  []string `hcl:"depth_formats,optional"`
	// Albedo is an image path. Empty selects a generated checkerboard.
	Albedo string `hcl:"albedo,optional"`

	Camera *Camera `hcl:"camera,block"`
	Lights []Light `hcl:"light,block"`
	Passes []Pass  `hcl:"pass,block"`
}

// Camera places the viewer. Fov is in degrees.
type Camera struct {
	Eye    []float64 `hcl:"eye,optional"`
	Target []float64 `hcl:"target,optional"`
	Up     []float64 `hcl:"up,optional"`
	Fov    float64   `hcl:"fov,optional"`
	Near   float64   `hcl:"near,optional"`
	Far    float64   `hcl:"far,optional"`
	// Spin is the world rotation speed in radians per second.
	Spin float64 `hcl:"spin,optional"`
}

// Light is a point light.
type Light struct {
	Name     string    `hcl:"name,label"`
	Position []float64 `hcl:"position"`
	Color    []float64 `hcl:"color,optional"`
	Radius   float64   `hcl:"radius,optional"`
}

// Pass enables one renderer pass. Kind defaults to the label.
type Pass struct {
	Name    string `hcl:"name,label"`
	Kind    string `hcl:"kind,optional"`
	Enabled *bool  `hcl:"enabled,optional"`
}

// IsEnabled reports whether the pass runs. Passes are enabled unless set
// otherwise.
func (p Pass) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// Default returns the configuration used when no file is given.
func Default(s Surface) *File {
	f := &File{}
	f.applyDefaults(s)
	return f
}

// Load reads and decodes the HCL file at path.
func Load(path string, s Surface) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(src, path, s)
}

// Parse decodes HCL source, applies defaults and validates the result.
// filename is used in diagnostics only.
func Parse(src []byte, filename string, s Surface) (*File, error) {
	if s.Width == 0 || s.Height == 0 {
		s = DefaultSurface
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var f File
	diags = gohcl.DecodeBody(hclFile.Body, evalContext(s), &f)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	f.applyDefaults(s)
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	framegraph.Logger().Info("config loaded",
		"file", filename, "schema", f.SchemaVersion,
		"extent", fmt.Sprintf("%dx%d", f.Width, f.Height),
		"passes", len(f.Passes), "lights", len(f.Lights))
	return &f, nil
}

func evalContext(s Surface) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"surface": cty.ObjectVal(map[string]cty.Value{
				"width":  cty.NumberUIntVal(uint64(s.Width)),
				"height": cty.NumberUIntVal(uint64(s.Height)),
			}),
		},
	}
}

// DefaultPasses is the pass list used when a file declares none.
var DefaultPasses = []string{"geometry", "camera", "albedo", "gbuffer", "lighting"}

func (f *File) applyDefaults(s Surface) {
	if s.Width == 0 || s.Height == 0 {
		s = DefaultSurface
	}
	if f.SchemaVersion == "" {
		f.SchemaVersion = SchemaVersion
	}
	if f.Frames == 0 {
		f.Frames = 3
	}
	if f.Width == 0 {
		f.Width = int(s.Width)
	}
	if f.Height == 0 {
		f.Height = int(s.Height)
	}

	if f.Camera == nil {
		f.Camera = &Camera{}
	}
	c := f.Camera
	if c.Eye == nil {
		c.Eye = []float64{0, 3, -1.5}
	}
	if c.Target == nil {
		c.Target = []float64{0, 0, 0}
	}
	if c.Up == nil {
		c.Up = []float64{0, 1, 0}
	}
	if c.Fov == 0 {
		c.Fov = 65
	}
	if c.Near == 0 {
		c.Near = 0.1
	}
	if c.Far == 0 {
		c.Far = 100
	}

	if len(f.Lights) == 0 {
		f.Lights = []Light{{Name: "default", Position: []float64{0, 2, 0, 1}}}
	}
	for i := range f.Lights {
		l := &f.Lights[i]
		if l.Color == nil {
			l.Color = []float64{1, 1, 1}
		}
		if l.Radius == 0 {
			l.Radius = 5
		}
	}

	if len(f.Passes) == 0 {
		for _, name := range DefaultPasses {
			f.Passes = append(f.Passes, Pass{Name: name})
		}
	}
	for i := range f.Passes {
		if f.Passes[i].Kind == "" {
			f.Passes[i].Kind = f.Passes[i].Name
		}
	}
}

// Validate checks the schema version and the decoded values.
func (f *File) Validate() error {
	if err := checkSchema(f.SchemaVersion); err != nil {
		return err
	}
	if f.Frames < 0 {
		return fmt.Errorf("%w: frames must not be negative, got %d", ErrInvalid, f.Frames)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: extent %dx%d must be positive", ErrInvalid, f.Width, f.Height)
	}
	if _, err := f.DepthTextureFormats(); err != nil {
		return err
	}

	if c := f.Camera; c != nil {
		if err := checkVector("camera.eye", c.Eye, 3); err != nil {
			return err
		}
		if err := checkVector("camera.target", c.Target, 3); err != nil {
			return err
		}
		if err := checkVector("camera.up", c.Up, 3); err != nil {
			return err
		}
		if c.Fov <= 0 || c.Fov >= 180 {
			return fmt.Errorf("%w: camera.fov %v must be in (0, 180)", ErrInvalid, c.Fov)
		}
		if c.Near <= 0 || c.Far <= c.Near {
			return fmt.Errorf("%w: camera near %v / far %v", ErrInvalid, c.Near, c.Far)
		}
	}

	if len(f.Lights) > framegraph.MaxLights {
		return fmt.Errorf("%w: %d lights, at most %d are supported", ErrInvalid, len(f.Lights), framegraph.MaxLights)
	}
	for _, l := range f.Lights {
		if err := checkVector("light "+l.Name+" position", l.Position, 4); err != nil {
			return err
		}
		if err := checkVector("light "+l.Name+" color", l.Color, 3); err != nil {
			return err
		}
		if l.Radius < 0 {
			return fmt.Errorf("%w: light %s has negative radius", ErrInvalid, l.Name)
		}
	}

	seen := make(map[string]bool, len(f.Passes))
	for _, p := range f.Passes {
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate pass %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func checkSchema(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedSchema, version, err)
	}
	c, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return fmt.Errorf("config: parse constraint %q: %w", SchemaConstraint, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedSchema, v, SchemaConstraint)
	}
	return nil
}

func checkVector(what string, v []float64, n int) error {
	if len(v) != n {
		return fmt.Errorf("%w: %s needs %d components, got %d", ErrInvalid, what, n, len(v))
	}
	return nil
}

// DepthTextureFormats resolves depth_formats. An empty list yields nil, so
// the device's default preference applies.
func (f *File) DepthTextureFormats() ([]gputypes.TextureFormat, error) {
	if len(f.DepthFormats) == 0 {
		return nil, nil
	}
	out := make([]gputypes.TextureFormat, 0, len(f.DepthFormats))
	for _, name := range f.DepthFormats {
		tf, err := ParseTextureFormat(name)
		if err != nil {
			return nil, err
		}
		if !tf.HasDepth() {
			return nil, fmt.Errorf("%w: %s is not a depth format", ErrInvalid, name)
		}
		out = append(out, tf)
	}
	return out, nil
}

var textureFormats = map[string]gputypes.TextureFormat{
	"rgba8unorm":            gputypes.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb":       gputypes.TextureFormatRGBA8UnormSrgb,
	"bgra8unorm":            gputypes.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb":       gputypes.TextureFormatBGRA8UnormSrgb,
	"rgba16float":           gputypes.TextureFormatRGBA16Float,
	"rgba32float":           gputypes.TextureFormatRGBA32Float,
	"depth16unorm":          gputypes.TextureFormatDepth16Unorm,
	"depth24plus":           gputypes.TextureFormatDepth24Plus,
	"depth24plus-stencil8":  gputypes.TextureFormatDepth24PlusStencil8,
	"depth32float":          gputypes.TextureFormatDepth32Float,
	"depth32float-stencil8": gputypes.TextureFormatDepth32FloatStencil8,
}

// ParseTextureFormat accepts WebGPU format names ("depth24plus-stencil8")
// and gputypes names ("Depth24PlusStencil8"), case-insensitively.
func ParseTextureFormat(name string) (gputypes.TextureFormat, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if tf, ok := textureFormats[key]; ok {
		return tf, nil
	}
	flat := strings.ReplaceAll(key, "-", "")
	for _, tf := range textureFormats {
		if strings.ToLower(tf.String()) == flat {
			return tf, nil
		}
	}
	return gputypes.TextureFormatUndefined, fmt.Errorf("%w: unknown texture format %q", ErrInvalid, name)
}
