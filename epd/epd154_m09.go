package epd

// Based on https://github.com/GoodDisplay/E-paper-Display-Library-of-GoodDisplay/blob/main/Monochrome_E-paper-Display/1.54inch_JD79653_GDEW0154M09_200x200/Arduino/GDEW0154M09_Arduino.ino

import (
	"image"
	"image/color"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// JD79653 commands
const (
	cmdPanelSetting = 0x00
	cmdPowerOff     = 0x02
	cmdPowerOn      = 0x04
	cmdSleep        = 0x07
	cmdOldFrame     = 0x10
	cmdRefresh      = 0x12
	cmdNewFrame     = 0x13
	cmdVCOMInterval = 0x50
	cmdTCON         = 0x60
	cmdResolution   = 0x61
)

type epd154m09 struct {
	*bus

	image *image1bit.VerticalLSB
}

// NewEPD154M09FromSPI drives a GoodDisplay GDEW0154M09 (JD79653) panel. The
// panel is initialised and cleared before returning.
func NewEPD154M09FromSPI(s spi.Port, dc, cs, rst gpio.PinOut, busy gpio.PinIO) (EPD, error) {
	b, err := newBus(s, 20*physic.MegaHertz, dc, cs, rst, busy)
	if err != nil {
		return nil, err
	}
	e := &epd154m09{
		bus:   b,
		image: image1bit.NewVerticalLSB(image.Rect(0, 0, 200, 200)),
	}
	e.init()
	e.blank()
	if err := e.flush(); err != nil {
		return nil, wrap("init 154_m09", err)
	}
	return e, nil
}

func (e *epd154m09) reset() {
	e.out(e.rst, gpio.Low)
	time.Sleep(10 * time.Millisecond)
	e.out(e.rst, gpio.High)
	time.Sleep(10 * time.Millisecond)
}

func (e *epd154m09) init() {
	b := e.Bounds()
	e.reset()
	time.Sleep(100 * time.Millisecond)

	e.command(cmdPanelSetting)
	e.data(0xDf, 0x0e)

	// vendor tuning registers
	e.command(0x4D)
	e.data(0x55)
	e.command(0xaa)
	e.data(0x0f)
	e.command(0xE9)
	e.data(0x02)
	e.command(0xb6)
	e.data(0x11)
	e.command(0xF3)
	e.data(0x0a)

	e.command(cmdResolution)
	e.data(byte(b.Dx()), byte(b.Dy()>>8), byte(b.Dy()))

	e.command(cmdTCON)
	e.data(0x00)

	e.command(cmdVCOMInterval)
	e.data(0x97)

	e.command(0xE3)
	e.data(0x00)

	e.command(cmdPowerOn)
	time.Sleep(100 * time.Millisecond)
	e.waitIdle()
}

// refresh needs at least 200us between the command and the first busy poll.
func (e *epd154m09) refresh() {
	e.command(cmdRefresh)
	time.Sleep(10 * time.Millisecond)
	e.waitIdle()
}

func (e *epd154m09) writeFrames(old, next image.Image) {
	e.command(cmdOldFrame)
	e.data(pack(old, e.Bounds())...)
	e.command(cmdNewFrame)
	e.data(pack(next, e.Bounds())...)
}

func (e *epd154m09) blank() {
	white := &image.Uniform{color.White}
	e.writeFrames(white, white)
	e.refresh()
}

func (e *epd154m09) sleep() {
	e.command(cmdPowerOff)
	e.waitIdle()
	time.Sleep(time.Second)
	e.command(cmdSleep)
	e.data(0xA5)
}

// UpdateDisplay always runs a full refresh; the panel has no partial waveform.
func (e *epd154m09) UpdateDisplay(img image.Image, partial bool) error {
	e.image = Prepare(img, e.Bounds())
	e.writeFrames(&image.Uniform{color.White}, e.image)
	e.refresh()
	return wrap("update 154_m09", e.flush())
}

func (e *epd154m09) Clear() error {
	e.blank()
	return wrap("clear 154_m09", e.flush())
}

func (e *epd154m09) Close() error {
	e.blank()
	e.sleep()
	return wrap("close 154_m09", e.flush())
}

func (e *epd154m09) Bounds() image.Rectangle {
	return e.image.Bounds()
}
