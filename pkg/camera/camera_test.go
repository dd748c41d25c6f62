package camera

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timeout = 2 * time.Second

func collect(n int) (func(pipeline.RawFrame), chan pipeline.RawFrame) {
	ch := make(chan pipeline.RawFrame, n)
	return func(f pipeline.RawFrame) {
		select {
		case ch <- f:
		default:
		}
	}, ch
}

func next(t *testing.T, ch chan pipeline.RawFrame) pipeline.RawFrame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(timeout):
		t.Fatal("no frame")
	}
	return pipeline.RawFrame{}
}

func TestFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	f := FromImage(img)
	assert.Equal(t, 3, f.W)
	assert.Equal(t, 3, f.H)
	assert.Len(t, f.Data, pipeline.NV21Size(3, 3))
	assert.Equal(t, byte(235), f.Data[0])
}

func TestPattern(t *testing.T) {
	p := NewPattern(32, 24, 200, 2, logger.Nop())
	sink, ch := collect(100)
	require.NoError(t, p.Start(context.Background(), sink))
	assert.ErrorIs(t, p.Start(context.Background(), sink), ErrRunning)

	for i := 0; i < 4; i++ {
		f := next(t, ch)
		assert.Equal(t, 32, f.W)
		assert.Len(t, f.Data, pipeline.NV21Size(32, 24))
		assert.False(t, f.Timestamp.IsZero())
	}
	p.Stop()
	p.Stop()

	// restartable
	require.NoError(t, p.Start(context.Background(), sink))
	p.Stop()
}

func TestPatternMoves(t *testing.T) {
	p := NewPattern(64, 48, 30, 1, logger.Nop())
	assert.NotEqual(t, p.Frame(0).Data, p.Frame(3).Data)
}

func TestPatternContext(t *testing.T) {
	p := NewPattern(8, 8, 500, 1, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	sink, _ := collect(1)
	require.NoError(t, p.Start(ctx, sink))
	cancel()
	select {
	case <-p.done:
	case <-time.After(timeout):
		t.Fatal("pattern didn't stop on cancel")
	}
	require.NoError(t, p.Start(context.Background(), sink))
	p.Stop()
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 100
	}
	img.Set(0, 0, color.Gray{Y: 255})
	tmp := filepath.Join(filepath.Dir(path), ".tmp")
	f, err := os.Create(tmp)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	require.NoError(t, os.Rename(tmp, path))
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 4, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	d := NewDir(dir, true, logger.Nop())
	sink, ch := collect(10)
	require.NoError(t, d.Start(context.Background(), sink))
	defer d.Stop()

	f := next(t, ch)
	assert.Equal(t, 4, f.W)
	assert.Equal(t, 2, f.H)

	writePNG(t, filepath.Join(dir, "b.png"), 6, 4)
	f = next(t, ch)
	assert.Equal(t, 6, f.W)
	assert.Equal(t, 4, f.H)
}

func TestDirContext(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir, false, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	sink, ch := collect(10)
	require.NoError(t, d.Start(ctx, sink))
	cancel()
	assert.Eventually(t, func() bool {
		err := d.Start(context.Background(), sink)
		return err == nil
	}, timeout, 5*time.Millisecond)
	defer d.Stop()

	writePNG(t, filepath.Join(dir, "c.png"), 2, 2)
	f := next(t, ch)
	assert.Equal(t, 2, f.W)
}

func TestDirMissing(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "nope"), false, logger.Nop())
	sink, _ := collect(1)
	assert.Error(t, d.Start(context.Background(), sink))
	d.Stop()
}
