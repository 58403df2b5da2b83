package epd

// Based on https://github.com/waveshare/e-Paper/blob/master/RaspberryPi_JetsonNano/c/lib/e-Paper/EPD_1in54_V2.c

import (
	"image"
	"image/color"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// full refresh waveform
var lutFull154v2 = []byte{
	0x80, 0x48, 0x40, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x40, 0x48, 0x80, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x80, 0x48, 0x40, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x40, 0x48, 0x80, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0xA, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x8, 0x1, 0x0, 0x8, 0x1, 0x0, 0x2,
	0xA, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x0, 0x0, 0x0,
	0x22, 0x17, 0x41, 0x0, 0x32, 0x20,
}

// partial (fast) refresh waveform
var lutPartial154v2 = []byte{
	0x0, 0x40, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x80, 0x80, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x40, 0x40, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x80, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0xF, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x1, 0x1, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x0, 0x0, 0x0, 0x0, 0x0, 0x0, 0x0,
	0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x0, 0x0, 0x0,
	0x02, 0x17, 0x41, 0xB0, 0x32, 0x28,
}

// SSD1681 commands
const (
	cmdDriverOutput   = 0x01
	cmdDataEntryMode  = 0x11
	cmdSoftReset      = 0x12
	cmdDeepSleep      = 0x10
	cmdTempSensor     = 0x18
	cmdActivate       = 0x20
	cmdUpdateControl2 = 0x22
	cmdWriteBlackRAM  = 0x24
	cmdWriteRedRAM    = 0x26
	cmdWriteLUT       = 0x32
	cmdOTPOption      = 0x37
	cmdBorder         = 0x3C
	cmdRAMXRange      = 0x44
	cmdRAMYRange      = 0x45
	cmdRAMXCounter    = 0x4E
	cmdRAMYCounter    = 0x4F
)

type epd154v2 struct {
	*bus

	image       *image1bit.VerticalLSB
	initPartial bool // what was the last init mode we used?
}

// NewEPD154V2FromSPI drives a Waveshare 1.54" V2 (SSD1681) panel. The panel
// is initialised and cleared before returning.
func NewEPD154V2FromSPI(s spi.Port, dc, cs, rst gpio.PinOut, busy gpio.PinIO) (EPD, error) {
	b, err := newBus(s, 20*physic.MegaHertz, dc, cs, rst, busy)
	if err != nil {
		return nil, err
	}
	e := &epd154v2{
		bus:   b,
		image: image1bit.NewVerticalLSB(image.Rect(0, 0, 200, 200)),
	}
	e.init()
	e.blank()
	if err := e.flush(); err != nil {
		return nil, wrap("init 154_v2", err)
	}
	return e, nil
}

func (e *epd154v2) reset() {
	e.pulseReset(20*time.Millisecond, 2*time.Millisecond)
}

func (e *epd154v2) turnOn(mode byte) {
	e.command(cmdUpdateControl2)
	e.data(mode)
	e.command(cmdActivate)
	e.waitIdle()
}

func (e *epd154v2) setLut(lut []byte) {
	e.command(cmdWriteLUT)
	e.data(lut[0:153]...)
	e.waitIdle()

	e.command(0x3f)
	e.data(lut[153])
	e.command(0x03) // gate voltage
	e.data(lut[154])
	e.command(0x04) // source voltage
	e.data(lut[155], lut[156], lut[157])
	e.command(0x2c) // VCOM
	e.data(lut[158])
}

func (e *epd154v2) setWindow(xstart, ystart, xend, yend int) {
	e.command(cmdRAMXRange)
	e.data(byte(xstart>>3), byte(xend>>3))
	e.command(cmdRAMYRange)
	e.data(byte(ystart), byte(ystart>>8), byte(yend), byte(yend>>8))
}

func (e *epd154v2) setCursor(x, y int) {
	e.command(cmdRAMXCounter)
	e.data(byte(x))
	e.command(cmdRAMYCounter)
	e.data(byte(y), byte(y>>8))
}

func (e *epd154v2) init() {
	b := e.Bounds()
	e.reset()

	e.waitIdle()
	e.command(cmdSoftReset)
	e.waitIdle()

	e.command(cmdDriverOutput)
	e.data(byte(b.Dy()-1), byte((b.Dy()-1)>>8), 0x01)

	e.command(cmdDataEntryMode)
	e.data(0x01)

	e.setWindow(0, b.Dy()-1, b.Dx()-1, 0)

	e.command(cmdBorder)
	e.data(0x01)

	e.command(cmdTempSensor)
	e.data(0x80) // internal sensor

	// load temperature and waveform setting
	e.command(cmdUpdateControl2)
	e.data(0xB1)
	e.command(cmdActivate)

	e.setCursor(0, b.Dy()-1)
	e.waitIdle()

	e.setLut(lutFull154v2)
	e.initPartial = false
}

func (e *epd154v2) initPartialMode() {
	e.reset()
	e.waitIdle()

	e.setLut(lutPartial154v2)
	e.command(cmdOTPOption)
	e.data(0x00, 0x00, 0x00, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00, 0x00)

	e.command(cmdBorder)
	e.data(0x80)

	e.command(cmdUpdateControl2)
	e.data(0xc0)
	e.command(cmdActivate)
	e.waitIdle()

	e.initPartial = true
}

// blank writes white into both RAM banks and runs a full refresh.
func (e *epd154v2) blank() {
	white := pack(&image.Uniform{color.White}, e.Bounds())
	e.command(cmdWriteBlackRAM)
	e.data(white...)
	e.command(cmdWriteRedRAM)
	e.data(white...)
	e.turnOn(0xc7)
}

func (e *epd154v2) sleep() {
	e.command(cmdDeepSleep)
	e.data(0x01)
	time.Sleep(100 * time.Millisecond)
}

func (e *epd154v2) UpdateDisplay(img image.Image, partial bool) error {
	// If we've changed mode, reinitialize
	if partial && !e.initPartial {
		e.initPartialMode()
	}
	if !partial && e.initPartial {
		e.init()
	}

	e.image = Prepare(img, e.Bounds())
	e.command(cmdWriteBlackRAM)
	e.data(pack(e.image, e.Bounds())...)
	if partial {
		e.turnOn(0xcf)
	} else {
		e.turnOn(0xc7)
	}
	return wrap("update 154_v2", e.flush())
}

func (e *epd154v2) Clear() error {
	if e.initPartial {
		e.init()
	}
	e.blank()
	return wrap("clear 154_v2", e.flush())
}

func (e *epd154v2) Close() error {
	e.init()
	e.blank()
	e.sleep()
	return wrap("close 154_v2", e.flush())
}

func (e *epd154v2) Bounds() image.Rectangle {
	return e.image.Bounds()
}
