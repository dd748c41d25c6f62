// Package export stores frozen snapshots.
package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/payload"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/hashicorp/go-multierror"
)

// Noop accepts every snapshot and stores nothing.
type Noop struct{}

func (Noop) Export(context.Context, pipeline.FrozenSnapshot, pipeline.ExportMeta) error { return nil }

// Multi runs every exporter in order and collects their errors.
type Multi []pipeline.Exporter

func (m Multi) Export(ctx context.Context, snap pipeline.FrozenSnapshot, meta pipeline.ExportMeta) error {
	var result *multierror.Error
	for _, e := range m {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		if err := e.Export(ctx, snap, meta); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Image converts a snapshot into an image, with the optional
// mode and time label in the top left corner.
func Image(snap pipeline.FrozenSnapshot, meta pipeline.ExportMeta, label bool) (image.Image, error) {
	img, err := payload.ToImage(&snap.Frame)
	if err != nil {
		return nil, err
	}
	if !label {
		return img, nil
	}
	rgba := clone(img)
	AddLabel(rgba, 0, 0, fmt.Sprintf("%v %v", meta.Mode, meta.CapturedAt.Format(time.RFC3339)))
	return rgba, nil
}

// EncodePNG renders a snapshot as PNG.
func EncodePNG(snap pipeline.FrozenSnapshot, meta pipeline.ExportMeta, label bool) ([]byte, error) {
	img, err := Image(snap, meta, label)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err = enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clone(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}
