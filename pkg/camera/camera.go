// Package camera has frame sources for the pipeline.
package camera

import (
	"context"
	"errors"
	"image"
	"image/color"

	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/edgeviewer/edgeviewer/pkg/transform"
)

var ErrRunning = errors.New("camera is already running")

// Source produces NV21 frames into the sink until stopped.
// The sink is called from the source's own goroutine and must not block.
type Source interface {
	Start(ctx context.Context, sink func(pipeline.RawFrame)) error
	Stop()
}

// FromImage converts an image into a NV21 frame.
func FromImage(img image.Image) pipeline.RawFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			rgb[i], rgb[i+1], rgb[i+2] = c.R, c.G, c.B
			i += 3
		}
	}
	return pipeline.RawFrame{Data: transform.RGBToNV21(rgb, w, h), W: w, H: h}
}
