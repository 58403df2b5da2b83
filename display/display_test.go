package display

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AndreRenaud/pidisplay/epd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type slowPanel struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
	err     error
	last    image.Image
}

func (p *slowPanel) enter() {
	n := p.active.Add(1)
	for {
		m := p.maxSeen.Load()
		if n <= m || p.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	p.active.Add(-1)
}

func (p *slowPanel) UpdateDisplay(img image.Image, partial bool) error {
	p.enter()
	p.calls.Add(1)
	p.last = img
	return p.err
}

func (p *slowPanel) Clear() error {
	p.enter()
	return p.err
}

func (p *slowPanel) Close() error            { return nil }
func (p *slowPanel) Bounds() image.Rectangle { return image.Rect(0, 0, 200, 200) }

func TestRenderDecodesAndUpdates(t *testing.T) {
	v, err := epd.NewVirtual(200, 200, "")
	require.NoError(t, err)
	d := New(v, Options{Type: epd.Virtual})

	require.NoError(t, d.Render(context.Background(), encodePNG(t, 40, 30), RenderOptions{}))
	require.Equal(t, 1, v.Updates())
	assert.Equal(t, Info{Type: epd.Virtual, Width: 200, Height: 200}, d.Info())
}

func TestRenderRejectsGarbage(t *testing.T) {
	v, err := epd.NewVirtual(200, 200, "")
	require.NoError(t, err)
	d := New(v, Options{})

	for _, data := range [][]byte{nil, []byte("not an image"), encodePNG(t, 10, 10)[:20]} {
		err := d.Render(context.Background(), data, RenderOptions{})
		require.ErrorIs(t, err, ErrInvalidInput)
	}
	require.Zero(t, v.Updates())
}

func TestRenderRotates(t *testing.T) {
	p := &slowPanel{}
	d := New(p, Options{Rotate: 90})
	require.NoError(t, d.Render(context.Background(), encodePNG(t, 100, 50), RenderOptions{}))
	require.Equal(t, image.Pt(50, 100), p.last.Bounds().Size())

	d = New(p, Options{Rotate: -180})
	require.NoError(t, d.Render(context.Background(), encodePNG(t, 100, 50), RenderOptions{}))
	require.Equal(t, image.Pt(100, 50), p.last.Bounds().Size())
}

func TestRotateArbitraryAngle(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	out := rotate(img, 45)
	require.Greater(t, out.Bounds().Dx(), 100)
	r, g, b, _ := out.At(0, 0).RGBA()
	require.Equal(t, color.White.Y, uint16(r))
	require.Equal(t, r, g)
	require.Equal(t, r, b)
}

func TestPanelErrorsAreNotInvalidInput(t *testing.T) {
	boom := errors.New("spi gone")
	d := New(&slowPanel{err: boom}, Options{})

	err := d.Render(context.Background(), encodePNG(t, 10, 10), RenderOptions{})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrInvalidInput)
	require.ErrorIs(t, d.Clear(context.Background()), boom)
}

func TestHardwareAccessIsSerialised(t *testing.T) {
	p := &slowPanel{}
	d := New(p, Options{})
	data := encodePNG(t, 20, 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Render(context.Background(), data, RenderOptions{Partial: true}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Clear(context.Background()))
		}()
	}
	wg.Wait()
	require.EqualValues(t, 8, p.calls.Load())
	require.EqualValues(t, 1, p.maxSeen.Load())
}
