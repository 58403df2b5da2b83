// Package epd drives SPI e-paper panels through periph.io.
package epd

import (
	"fmt"
	"image"
	"sort"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// EPD is a single attached panel. Implementations are not safe for
// concurrent use.
type EPD interface {
	// UpdateDisplay fits img to the panel and refreshes it. partial selects
	// the fast waveform on panels that have one.
	UpdateDisplay(img image.Image, partial bool) error
	// Clear blanks the panel to white.
	Clear() error
	// Close blanks the panel and puts it to sleep.
	Close() error
	// Bounds is the native resolution of the panel.
	Bounds() image.Rectangle
}

// Virtual is the panel type that needs no hardware.
const Virtual = "virtual"

var epdTypes = map[string]func(spi.Port, gpio.PinOut, gpio.PinOut, gpio.PinOut, gpio.PinIO) (EPD, error){
	"154_v2":  NewEPD154V2FromSPI,
	"154_m09": NewEPD154M09FromSPI,
}

// SupportedTypes lists the SPI panel types, sorted.
func SupportedTypes() []string {
	retval := make([]string, 0, len(epdTypes))
	for k := range epdTypes {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval
}

func NewEPDFromSPI(epdType string, s spi.Port, dc, cs, rst gpio.PinOut, busy gpio.PinIO) (EPD, error) {
	ctor, ok := epdTypes[epdType]
	if !ok {
		return nil, fmt.Errorf("unknown epd type %q (supported: %v)", epdType, SupportedTypes())
	}
	return ctor(s, dc, cs, rst, busy)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("epd: %s: %w", op, err)
}
