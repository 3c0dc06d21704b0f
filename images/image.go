// Package images - Image loading and model input preparation.
package images

import (
	"bytes"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
)

// Image represents a decoded image together with its source format.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The decoded pixels.
	Image image.Image `json:"-" yaml:"-"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// Decode decodes an encoded JPEG, PNG, WebP or BMP image.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - Image: The decoded image.
//   - error: An error if the data is empty or cannot be decoded.
func Decode(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, errors.New("empty image data")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, errors.Wrap(err, "failed to decode image")
	}

	return Image{
		Format: ImageFormat(format),
		Image:  img,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// LoadImage reads and decodes the image file at path.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, errors.Wrapf(err, "failed to read image %s", path)
	}
	img, err := Decode(data)
	if err != nil {
		return Image{}, errors.Wrapf(err, "image %s", path)
	}
	return img, nil
}

// PrepareInput resizes img to width x height and packs it into dst as planar
// RGB (CHW) float32 values in the range [0, 255].
//
// Arguments:
//   - img: The image to prepare.
//   - width: The model input width.
//   - height: The model input height.
//   - dst: The destination tensor data, at least 3*width*height long.
//
// Returns:
//   - error: An error if the destination is too small.
func PrepareInput(img image.Image, width, height int, dst []float32) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}
	channelSize := width * height
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		b = img.Bounds()
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = float32(r >> 8)
			green[i] = float32(g >> 8)
			blue[i] = float32(bl >> 8)
			i++
		}
	}
	return nil
}
