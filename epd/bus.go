package epd

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ErrBusyTimeout is returned when the panel holds its busy line for longer
// than busyTimeout.
var ErrBusyTimeout = errors.New("epd: timed out waiting for busy pin")

// spidev rejects single transfers larger than its default bufsiz.
const maxTxSize = 4096

var busyTimeout = 10 * time.Second

// bus drives the 4-wire (DC + CS) SPI framing shared by the panels. The first
// error is kept and every later transfer becomes a no-op until flush.
type bus struct {
	c    spi.Conn
	dc   gpio.PinOut
	cs   gpio.PinOut
	rst  gpio.PinOut
	busy gpio.PinIO

	err error
}

func newBus(s spi.Port, f physic.Frequency, dc, cs, rst gpio.PinOut, busy gpio.PinIO) (*bus, error) {
	if dc == nil || dc == gpio.INVALID {
		return nil, errors.New("epd: 3-wire mode is not supported, a dc pin is required")
	}
	c, err := s.Connect(f, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("epd: connect: %w", err)
	}
	b := &bus{c: c, dc: dc, cs: cs, rst: rst, busy: busy}

	b.out(rst, gpio.High)
	b.out(dc, gpio.Low)
	b.out(cs, gpio.High)
	if b.err == nil {
		if err := busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
			b.err = err
		}
	}
	if err := b.flush(); err != nil {
		return nil, fmt.Errorf("epd: configure pins: %w", err)
	}
	return b, nil
}

func (b *bus) out(p gpio.PinOut, l gpio.Level) {
	if b.err != nil {
		return
	}
	if err := p.Out(l); err != nil {
		b.err = fmt.Errorf("%s: %w", p, err)
	}
}

func (b *bus) tx(dc gpio.Level, data []byte) {
	b.out(b.dc, dc)
	b.out(b.cs, gpio.Low)
	if b.err != nil {
		return
	}
	for len(data) > 0 {
		n := len(data)
		if n > maxTxSize {
			n = maxTxSize
		}
		if err := b.c.Tx(data[:n], nil); err != nil {
			b.err = fmt.Errorf("tx: %w", err)
			// Best effort; the tx error is the one reported.
			_ = b.cs.Out(gpio.High)
			return
		}
		data = data[n:]
	}
	b.out(b.cs, gpio.High)
}

func (b *bus) command(cmd byte) {
	b.tx(gpio.Low, []byte{cmd})
}

func (b *bus) data(data ...byte) {
	b.tx(gpio.High, data)
}

// waitIdle blocks until the busy line drops.
func (b *bus) waitIdle() {
	if b.err != nil {
		return
	}
	deadline := time.Now().Add(busyTimeout)
	for b.busy.Read() == gpio.High {
		if time.Now().After(deadline) {
			b.err = ErrBusyTimeout
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (b *bus) pulseReset(high, low time.Duration) {
	b.out(b.rst, gpio.High)
	time.Sleep(high)
	b.out(b.rst, gpio.Low)
	time.Sleep(low)
	b.out(b.rst, gpio.High)
	time.Sleep(high)
}

// flush returns the sticky error and resets it for the next sequence.
func (b *bus) flush() error {
	err := b.err
	b.err = nil
	return err
}

func pixelisset(c color.Color) bool {
	r, g, b, a := c.RGBA()
	return a >= 0x80 && (r > 0x20 || g > 0x20 || b > 0x20)
}

// pack converts img into the row-major MSB-first bitmap both controllers
// expect. A set bit is a white pixel.
func pack(img image.Image, bounds image.Rectangle) []byte {
	stride := (bounds.Dx() + 7) / 8
	out := make([]byte, stride*bounds.Dy())
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			if pixelisset(img.At(bounds.Min.X+x, bounds.Min.Y+y)) {
				out[y*stride+x/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return out
}
