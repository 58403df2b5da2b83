package epd

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Transports a panel can be reached over.
const (
	TransportSPI  = "spi"
	TransportFTDI = "ftdi"
)

// Pins names the control lines. With TransportSPI they are gpioreg names
// (e.g. "GPIO25"); with TransportFTDI they are FT232H header names
// (e.g. "FT232H.C0").
type Pins struct {
	DC   string
	CS   string
	RST  string
	Busy string
}

type Options struct {
	Type      string
	Transport string
	// Bus is the spireg name; empty selects the first bus.
	Bus  string
	Pins Pins

	// Virtual panel only.
	Width    int
	Height   int
	Snapshot string
}

// Open connects the configured panel. The returned EPD releases the bus it
// opened on Close.
func Open(opts Options) (EPD, error) {
	if opts.Type == Virtual {
		if opts.Width <= 0 || opts.Height <= 0 {
			return nil, fmt.Errorf("epd: virtual panel needs a positive size, got %dx%d", opts.Width, opts.Height)
		}
		v, err := NewVirtual(opts.Width, opts.Height, opts.Snapshot)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	if _, ok := epdTypes[opts.Type]; !ok {
		return nil, fmt.Errorf("unknown epd type %q (supported: %v)", opts.Type, SupportedTypes())
	}

	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: host init: %w", err)
	}

	var (
		port   spi.PortCloser
		lookup func(string) (gpio.PinIO, error)
		err    error
	)
	switch opts.Transport {
	case TransportSPI, "":
		port, err = spireg.Open(opts.Bus)
		lookup = registryPin
	case TransportFTDI:
		var ft232h *ftdi.FT232H
		ft232h, err = firstFT232H()
		if err == nil {
			port, err = ft232h.SPI()
			lookup = func(name string) (gpio.PinIO, error) { return headerPin(ft232h, name) }
		}
	default:
		err = fmt.Errorf("unknown transport %q", opts.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("epd: open %s: %w", opts.Transport, err)
	}

	return attach(opts.Type, port, opts.Pins, lookup)
}

// attach drives a panel of type typ on an open port. The port is closed if
// the panel cannot be brought up, and with the panel otherwise.
func attach(typ string, port spi.PortCloser, p Pins, lookup func(string) (gpio.PinIO, error)) (EPD, error) {
	pins, err := resolvePins(p, lookup)
	if err == nil {
		var e EPD
		e, err = NewEPDFromSPI(typ, port, pins[0], pins[1], pins[2], pins[3])
		if err == nil {
			return &portEPD{EPD: e, port: port}, nil
		}
	}
	return nil, errors.Join(err, port.Close())
}

type portEPD struct {
	EPD
	port spi.PortCloser
}

func (p *portEPD) Close() error {
	return errors.Join(p.EPD.Close(), p.port.Close())
}

func resolvePins(p Pins, lookup func(string) (gpio.PinIO, error)) ([4]gpio.PinIO, error) {
	var out [4]gpio.PinIO
	for i, name := range []string{p.DC, p.CS, p.RST, p.Busy} {
		pin, err := lookup(name)
		if err != nil {
			return out, fmt.Errorf("epd: pin %d: %w", i, err)
		}
		out[i] = pin
	}
	return out, nil
}

func registryPin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, errors.New("empty gpio name")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no such gpio %s", name)
	}
	return p, nil
}

func firstFT232H() (*ftdi.FT232H, error) {
	all := ftdi.All()
	if len(all) == 0 {
		return nil, errors.New("found no FTDI device on the USB bus")
	}
	ft232h, ok := all[0].(*ftdi.FT232H)
	if !ok {
		return nil, fmt.Errorf("%s is not an FT232H", all[0])
	}
	return ft232h, nil
}

func headerPin(ft232h *ftdi.FT232H, name string) (gpio.PinIO, error) {
	for _, h := range ft232h.Header() {
		if strings.EqualFold(h.Name(), name) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("no such gpio %s", name)
}
