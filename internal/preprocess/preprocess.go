package preprocess

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"

	"github.com/Brownie44l1/tomjerry-api/internal/model"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Interpolation point-samples the source pixel under each output pixel
// centre, the way the training pipeline loaded images.
var Interpolation = imaging.NearestNeighbor

func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// LoadTensor decodes the image at path and converts it with Tensor.
func LoadTensor(path string, meta model.Metadata, scale float32) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, format, err := Decode(f)
	if err != nil {
		return nil, err
	}

	slog.Debug("decoded image", "path", path, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	return Tensor(img, meta, scale), nil
}

// Tensor resizes img to meta.ImageSize square and flattens it into a batch
// of one RGB image in meta.Layout order. Alpha is dropped without
// premultiplying. Channel values are 0-255 divided by scale.
func Tensor(img image.Image, meta model.Metadata, scale float32) []float32 {
	size := meta.ImageSize
	resized := imaging.Resize(img, size, size, Interpolation)

	width, height := resized.Rect.Dx(), resized.Rect.Dy()
	plane := width * height

	const channels = 3
	inputData := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+channels]

			pixelIndex := y*width + x
			for c, v := range px {
				value := float32(v) / scale
				if meta.Layout == model.LayoutNCHW {
					inputData[c*plane+pixelIndex] = value
				} else {
					inputData[pixelIndex*channels+c] = value
				}
			}
		}
	}

	return inputData
}
