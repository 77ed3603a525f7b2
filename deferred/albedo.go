package deferred

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	"golang.org/x/image/draw"

	// Decoders for LoadImage.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

// LoadImage decodes the image at path and converts it to RGBA, scaling it
// down so neither side exceeds maxSize. A non-positive maxSize disables
// scaling.
func LoadImage(path string, maxSize int) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("deferred: open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("deferred: decode image %s: %w", path, err)
	}
	out := ToRGBA(img, maxSize)
	framegraph.Logger().Debug("deferred: image loaded",
		"path", path, "format", format,
		"size", fmt.Sprintf("%dx%d", out.Bounds().Dx(), out.Bounds().Dy()))
	return out, nil
}

// ToRGBA converts src to a tightly packed RGBA image at the origin. Images
// larger than maxSize on either side are scaled with Catmull-Rom, keeping
// the aspect ratio.
func ToRGBA(src image.Image, maxSize int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			w, h = maxSize, max(1, h*maxSize/w)
		} else {
			w, h = max(1, w*maxSize/h), maxSize
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		return dst
	}

	if rgba, ok := src.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*w {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Checkerboard returns a size x size image of alternating cells.
func Checkerboard(size, cell int, a, b color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell = max(cell, 1)
	for y := range size {
		for x := range size {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func albedoImage(env *Env) (*image.RGBA, error) {
	if env.Config.Albedo == "" {
		return Checkerboard(256, 32,
			color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff},
			color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}), nil
	}
	return LoadImage(env.Config.Albedo, env.MaxTextureSize)
}

func buildAlbedo(env *Env, name string) (*framegraph.Node, error) {
	return &framegraph.Node{
		Name:          name,
		Outputs:       []string{AlbedoMap},
		ShouldExecute: true,
		Setup: func(g *framegraph.Graph, n *framegraph.Node) error {
			img, err := albedoImage(env)
			if err != nil {
				return err
			}
			b := img.Bounds()
			_, err = framegraph.ProduceImage(g, n, framegraph.ImageDesc{
				Name:   AlbedoMap,
				Format: gputypes.TextureFormatRGBA8Unorm,
				Extent: gputypes.Extent3D{Width: uint32(b.Dx()), Height: uint32(b.Dy()), DepthOrArrayLayers: 1},
				Usage:  gputypes.TextureUsageTextureBinding,
				Sampler: &hal.SamplerDescriptor{
					Label:        AlbedoMap + "_sampler",
					AddressModeU: gputypes.AddressModeRepeat,
					AddressModeV: gputypes.AddressModeRepeat,
					AddressModeW: gputypes.AddressModeRepeat,
					MagFilter:    gputypes.FilterModeLinear,
					MinFilter:    gputypes.FilterModeLinear,
					MipmapFilter: gputypes.FilterModeLinear,
				},
				Data:        img.Pix,
				BytesPerRow: uint32(img.Stride),
			})
			return err
		},
	}, nil
}
