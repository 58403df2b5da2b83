// Package display is the handle the HTTP layer talks to. It owns the panel
// for the lifetime of the process.
package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/AndreRenaud/pidisplay/epd"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidInput marks uploads that could not be read as an image.
var ErrInvalidInput = errors.New("invalid image data")

type Options struct {
	// Type is reported by Info, e.g. "154_v2".
	Type string
	// Rotate is applied to every image before it is fitted, in degrees
	// counter-clockwise.
	Rotate int
}

type RenderOptions struct {
	Partial bool
}

type Info struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Display serialises access to one panel.
type Display struct {
	mu    sync.Mutex
	panel epd.EPD
	opts  Options
}

func New(panel epd.EPD, opts Options) *Display {
	return &Display{panel: panel, opts: opts}
}

// Render decodes data and pushes it to the panel. Decode failures wrap
// ErrInvalidInput and never reach the panel.
func (d *Display) Render(ctx context.Context, data []byte, opts RenderOptions) error {
	logger := zerolog.Ctx(ctx)

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	img = rotate(img, d.opts.Rotate)

	d.mu.Lock()
	defer d.mu.Unlock()
	start := time.Now()
	if err := d.panel.UpdateDisplay(img, opts.Partial); err != nil {
		return err
	}
	logger.Info().
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Bool("partial", opts.Partial).
		Dur("refresh", time.Since(start)).
		Msg("display updated")
	return nil
}

func (d *Display) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := time.Now()
	if err := d.panel.Clear(); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Dur("refresh", time.Since(start)).Msg("display cleared")
	return nil
}

func (d *Display) Info() Info {
	b := d.panel.Bounds()
	return Info{Type: d.opts.Type, Width: b.Dx(), Height: b.Dy()}
}

// Close blanks the panel, puts it to sleep and releases its bus.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.panel.Close()
}

func rotate(img image.Image, deg int) image.Image {
	switch ((deg % 360) + 360) % 360 {
	case 0:
		return img
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Rotate(img, float64(deg), color.White)
	}
}
