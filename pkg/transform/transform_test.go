package transform

import (
	"bytes"
	"errors"
	"testing"

	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
)

func frame(w, h int, fill func(x, y int) byte) pipeline.RawFrame {
	data := make([]byte, pipeline.NV21Size(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = fill(x, y)
		}
	}
	for i := w * h; i < len(data); i++ {
		data[i] = 128
	}
	return pipeline.RawFrame{Data: data, W: w, H: h}
}

func TestModes(t *testing.T) {
	f := frame(8, 6, func(x, y int) byte { return byte(x * 30) })
	p := New()
	tests := []struct {
		mode pipeline.Mode
		ch   int
	}{
		{pipeline.ModeRaw, 3},
		{pipeline.ModeGrayscale, 1},
		{pipeline.ModeEdges, 1},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			out, err := p.Transform(f, tt.mode)
			if err != nil {
				t.Fatal(err)
			}
			if out.Channels != tt.ch || len(out.Data) != 8*6*tt.ch || out.W != 8 || out.H != 6 {
				t.Errorf("wrong output %vx%vx%v len %v", out.W, out.H, out.Channels, len(out.Data))
			}
		})
	}
}

func TestGrayscaleIsLuma(t *testing.T) {
	f := frame(4, 4, func(x, y int) byte { return byte(y*4 + x) })
	out, err := New().Transform(f, pipeline.ModeGrayscale)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Data, f.Data[:16]) {
		t.Errorf("grayscale should be the Y plane")
	}
}

func TestEdgesFindStep(t *testing.T) {
	f := frame(16, 16, func(x, y int) byte {
		if x < 8 {
			return 0
		}
		return 255
	})
	out, err := New().Transform(f, pipeline.ModeEdges)
	if err != nil {
		t.Fatal(err)
	}
	row := out.Data[8*16 : 9*16]
	if row[7] != 255 && row[8] != 255 {
		t.Errorf("no edge at the step: %v", row)
	}
	if row[0] != 0 || row[15] != 0 {
		t.Errorf("edges in flat areas: %v", row)
	}
}

func TestMalformed(t *testing.T) {
	_, err := New().Transform(pipeline.RawFrame{Data: make([]byte, 10), W: 8, H: 8}, pipeline.ModeEdges)
	if !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
}

func TestRotate(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6} // 3x2
	tests := []struct {
		deg  int
		want []byte
		w, h int
	}{
		{90, []byte{4, 1, 5, 2, 6, 3}, 2, 3},
		{180, []byte{6, 5, 4, 3, 2, 1}, 3, 2},
		{270, []byte{3, 6, 2, 5, 1, 4}, 2, 3},
		{45, src, 3, 2},
	}
	for _, tt := range tests {
		got, w, h := Rotate(src, 3, 2, 1, tt.deg)
		if !bytes.Equal(got, tt.want) || w != tt.w || h != tt.h {
			t.Errorf("%v: got %v %vx%v, want %v %vx%v", tt.deg, got, w, h, tt.want, tt.w, tt.h)
		}
	}
}

func TestColorRoundTrip(t *testing.T) {
	rgb := []byte{200, 30, 30, 200, 30, 30, 200, 30, 30, 200, 30, 30}
	back := NV21ToRGB(RGBToNV21(rgb, 2, 2), 2, 2)
	for i := range rgb {
		if d := int(rgb[i]) - int(back[i]); d > 6 || d < -6 {
			t.Fatalf("too far at %v: %v vs %v", i, rgb[i], back[i])
		}
	}
}
