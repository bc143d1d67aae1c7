package upload

import (
	"bytes"
	"image"
	_ "image/png"
	"io/fs"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/vkngwrapper/tutorial-engine/gpu"
)

// Texture is a sampled image together with everything a shader needs to bind
// it: view, sampler, and a descriptor set of its own.
type Texture struct {
	Name      string
	Extent    gpu.Extent
	Image     gpu.ImageResource
	View      gpu.ImageView
	Sampler   gpu.Sampler
	SetLayout gpu.DescriptorSetLayout
	Pool      gpu.DescriptorPool
	Set       gpu.DescriptorSet

	scope *gpu.Scope
}

// TextureBindings is the layout of a texture's descriptor set.
var TextureBindings = []gpu.DescriptorBinding{
	{Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.StageFragment},
}

// DecodeImage reads a PNG, BMP or TIFF file and converts it to RGBA.
func DecodeImage(fsys fs.FS, path string) (*image.RGBA, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read image %s", path)
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", path)
	}
	if rgba, ok := decoded.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	bounds := decoded.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), decoded, bounds.Min, draw.Src)
	return rgba, nil
}

// LoadTexture decodes path from fsys and builds a texture from it.
func (u *Uploader) LoadTexture(fsys fs.FS, path string) (*Texture, error) {
	img, err := DecodeImage(fsys, path)
	if err != nil {
		return nil, errors.Wrap(err, "load texture")
	}
	return u.NewTexture(path, img)
}

// Solid returns a 1x1 image of one color, the stand-in when no texture file
// is configured.
func Solid(r, g, b, a uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	copy(img.Pix, []byte{r, g, b, a})
	return img
}

// NewTexture uploads img and builds its view, sampler and descriptor set.
// Either all of them exist afterwards or none do.
func (u *Uploader) NewTexture(name string, img *image.RGBA) (*Texture, error) {
	scope := &gpu.Scope{}
	defer scope.Release()

	extent := gpu.Extent{Width: img.Rect.Dx(), Height: img.Rect.Dy()}
	pixels := img.Pix
	if img.Stride != extent.Width*4 {
		pixels = make([]byte, 0, extent.Width*extent.Height*4)
		for y := 0; y < extent.Height; y++ {
			row := img.Pix[y*img.Stride:]
			pixels = append(pixels, row[:extent.Width*4]...)
		}
	}

	t := &Texture{Name: name, Extent: extent}
	var err error

	t.Image, err = u.CreateImage(extent, gpu.FormatRGBA8SRGB, pixels)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s", name)
	}
	scope.Add(t.Image)

	t.View, err = u.device.CreateImageView(t.Image, gpu.AspectColor)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s: view", name)
	}
	scope.Add(t.View)

	t.Sampler, err = u.device.CreateSampler(gpu.SamplerInfo{Linear: true, Repeat: true, Anisotropy: true})
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s: sampler", name)
	}
	scope.Add(t.Sampler)

	t.SetLayout, err = u.device.CreateDescriptorSetLayout(TextureBindings)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s: set layout", name)
	}
	scope.Add(t.SetLayout)

	t.Pool, err = u.device.CreateDescriptorPool(gpu.DescriptorPoolInfo{
		MaxSets: 1,
		Sizes:   []gpu.PoolSize{{Type: gpu.DescriptorCombinedImageSampler, Count: 1}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s: descriptor pool", name)
	}
	scope.Add(t.Pool)

	sets, err := t.Pool.Allocate(t.SetLayout, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s: descriptor set", name)
	}
	t.Set = sets[0]
	if err := t.Set.WriteImage(0, t.View, t.Sampler); err != nil {
		return nil, errors.Wrapf(err, "texture %s: descriptor write", name)
	}

	u.logger.Info("texture loaded",
		slog.String("texture", name),
		slog.Int("width", extent.Width),
		slog.Int("height", extent.Height))

	t.scope = scope.Dismiss()
	return t, nil
}

// Destroy releases the texture's objects in reverse creation order. It is
// safe to call twice.
func (t *Texture) Destroy() {
	if t == nil {
		return
	}
	t.scope.Release()
}
