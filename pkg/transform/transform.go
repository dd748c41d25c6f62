// Package transform has the default pixel transforms for NV21 camera frames.
package transform

import (
	"errors"
	"fmt"

	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
)

var ErrBadFrame = errors.New("malformed frame")

const (
	lowThreshold  = 50
	highThreshold = 150
)

// Processor implements pipeline.Transform.
// It reuses internal buffers, so it's not safe for concurrent use.
type Processor struct {
	LowThreshold  int
	HighThreshold int

	blur []int32
	mag  []int32
}

func New() *Processor { return &Processor{LowThreshold: lowThreshold, HighThreshold: highThreshold} }

func (p *Processor) Transform(f pipeline.RawFrame, m pipeline.Mode) (*pipeline.ProcessedFrame, error) {
	if f.W <= 0 || f.H <= 0 || len(f.Data) < pipeline.NV21Size(f.W, f.H) {
		return nil, fmt.Errorf("%w: %vx%v with %v bytes", ErrBadFrame, f.W, f.H, len(f.Data))
	}

	var data []byte
	ch := 1
	switch m {
	case pipeline.ModeRaw:
		data, ch = NV21ToRGB(f.Data, f.W, f.H), 3
	case pipeline.ModeGrayscale:
		data = append([]byte(nil), f.Data[:f.W*f.H]...)
	case pipeline.ModeEdges:
		data = p.edges(f.Data[:f.W*f.H], f.W, f.H)
	default:
		return nil, fmt.Errorf("unsupported mode %v", m)
	}

	w, h := f.W, f.H
	if f.Rotation%360 != 0 {
		data, w, h = Rotate(data, w, h, ch, f.Rotation)
	}
	return &pipeline.ProcessedFrame{Data: data, W: w, H: h, Channels: ch, Mode: m}, nil
}

// NV21ToRGB converts a NV21 frame into packed RGB (BT.601).
func NV21ToRGB(src []byte, w, h int) []byte {
	out := make([]byte, w*h*3)
	uv := src[w*h:]
	cw := (w + 1) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			Y := int32(src[y*w+x])
			i := (y/2)*cw*2 + (x/2)*2
			V, U := int32(uv[i])-128, int32(uv[i+1])-128
			c := Y - 16
			if c < 0 {
				c = 0
			}
			r := (298*c + 409*V + 128) >> 8
			g := (298*c - 100*U - 208*V + 128) >> 8
			b := (298*c + 516*U + 128) >> 8
			o := (y*w + x) * 3
			out[o], out[o+1], out[o+2] = clamp(r), clamp(g), clamp(b)
		}
	}
	return out
}

// RGBToNV21 is the reverse conversion, used by the synthetic sources.
func RGBToNV21(rgb []byte, w, h int) []byte {
	out := make([]byte, pipeline.NV21Size(w, h))
	cw := (w + 1) / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			r, g, b := int32(rgb[o]), int32(rgb[o+1]), int32(rgb[o+2])
			out[y*w+x] = clamp(((66*r + 129*g + 25*b + 128) >> 8) + 16)
			if y%2 == 0 && x%2 == 0 {
				i := w*h + (y/2)*cw*2 + (x/2)*2
				out[i] = clamp(((112*r - 94*g - 18*b + 128) >> 8) + 128)
				out[i+1] = clamp(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			}
		}
	}
	return out
}

func clamp(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Rotate turns the image clockwise by 90, 180 or 270 degrees.
func Rotate(src []byte, w, h, ch, deg int) ([]byte, int, int) {
	deg = ((deg % 360) + 360) % 360
	if deg != 90 && deg != 180 && deg != 270 {
		return src, w, h
	}
	out := make([]byte, len(src))
	nw, nh := w, h
	if deg != 180 {
		nw, nh = h, w
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch deg {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = y, w-1-x
			}
			copy(out[(dy*nw+dx)*ch:(dy*nw+dx+1)*ch], src[(y*w+x)*ch:(y*w+x+1)*ch])
		}
	}
	return out, nw, nh
}
