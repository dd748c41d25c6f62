package payload

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/goccy/go-json"
	"golang.org/x/image/draw"
)

const defaultQuality = 85

// ToImage wraps a processed frame into an image.
// One-channel frames share the pixel buffer, RGB ones are converted.
func ToImage(f *pipeline.ProcessedFrame) (image.Image, error) {
	if f == nil || len(f.Data) < f.W*f.H*f.Channels {
		return nil, fmt.Errorf("bad frame data")
	}
	r := image.Rect(0, 0, f.W, f.H)
	switch f.Channels {
	case 1:
		return &image.Gray{Pix: f.Data[:f.W*f.H], Stride: f.W, Rect: r}, nil
	case 3:
		img := image.NewRGBA(r)
		for i, j := 0, 0; i < f.W*f.H*3; i, j = i+3, j+4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = f.Data[i], f.Data[i+1], f.Data[i+2], 0xff
		}
		return img, nil
	}
	return nil, fmt.Errorf("unsupported channels: %v", f.Channels)
}

// Scale resizes the image with bilinear interpolation, 1 or less keeps the size.
func Scale(src image.Image, scale float64) image.Image {
	if scale <= 0 || scale == 1 {
		return src
	}
	b := src.Bounds()
	w, h := max(1, int(float64(b.Dx())*scale)), max(1, int(float64(b.Dy())*scale))
	var dst draw.Image
	if _, ok := src.(*image.Gray); ok {
		dst = image.NewGray(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JPEGEncoder turns outbound frames into JSON frame messages with base64 JPEG.
type JPEGEncoder struct {
	Quality int
	Scale   float64
}

func (e JPEGEncoder) Encode(o pipeline.Outbound) ([]byte, error) {
	img, err := ToImage(o.Frame)
	if err != nil {
		return nil, err
	}
	img = Scale(img, e.Scale)
	q := e.Quality
	if q <= 0 || q > 100 {
		q = defaultQuality
	}
	data, err := EncodeJPEG(img, q)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{
		Type:      TypeFrame,
		Metadata:  MetadataOf(o),
		ImageData: base64.StdEncoding.EncodeToString(data),
	})
}

func MetadataOf(o pipeline.Outbound) Metadata {
	f := o.Frame
	return Metadata{
		Width:            f.W,
		Height:           f.H,
		Fps:              o.Fps,
		ProcessingTimeMs: float64(f.Duration.Microseconds()) / 1000,
		Timestamp:        f.Timestamp.UnixMilli(),
		Mode:             o.Mode.String(),
		State:            o.State.String(),
		IsLandscape:      f.IsLandscape(),
	}
}
