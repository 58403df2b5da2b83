package epd

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"
)

func testPins() (dc, cs, rst, busy *gpiotest.Pin) {
	return &gpiotest.Pin{N: "DC"}, &gpiotest.Pin{N: "CS"}, &gpiotest.Pin{N: "RST"}, &gpiotest.Pin{N: "BUSY"}
}

func written(ops []conntest.IO) []byte {
	var out []byte
	for _, op := range ops {
		out = append(out, op.W...)
	}
	return out
}

func frameOf(v byte) []byte {
	return bytes.Repeat([]byte{v}, 200*200/8)
}

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestSupportedTypes(t *testing.T) {
	require.Equal(t, []string{"154_m09", "154_v2"}, SupportedTypes())

	_, err := NewEPDFromSPI("213_v4", &spitest.Record{}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestEPD154V2RejectsInvalidDC(t *testing.T) {
	_, cs, rst, busy := testPins()
	_, err := NewEPD154V2FromSPI(&spitest.Record{}, gpio.INVALID, cs, rst, busy)
	require.Error(t, err)
}

func TestEPD154V2InitClearsToWhite(t *testing.T) {
	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154V2FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 200, 200), e.Bounds())

	w := written(rec.Ops)
	require.Equal(t, byte(cmdSoftReset), w[0])
	require.True(t, bytes.HasSuffix(w, join(
		[]byte{cmdWriteBlackRAM}, frameOf(0xff),
		[]byte{cmdWriteRedRAM}, frameOf(0xff),
		[]byte{cmdUpdateControl2, 0xc7, cmdActivate},
	)))
	require.Equal(t, gpio.High, cs.Read(), "chip select must be released")
}

func TestEPD154V2UpdateFull(t *testing.T) {
	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154V2FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)

	start := len(rec.Ops)
	require.NoError(t, e.UpdateDisplay(image.NewGray(image.Rect(0, 0, 200, 200)), false))

	want := join([]byte{cmdWriteBlackRAM}, frameOf(0x00), []byte{cmdUpdateControl2, 0xc7, cmdActivate})
	require.Equal(t, want, written(rec.Ops[start:]))
}

func TestEPD154V2PartialSwitchesWaveform(t *testing.T) {
	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154V2FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)

	start := len(rec.Ops)
	require.NoError(t, e.UpdateDisplay(filled(200, 200, color.White), true))
	w := written(rec.Ops[start:])
	require.Equal(t, byte(cmdWriteLUT), w[0])
	require.True(t, bytes.HasSuffix(w, []byte{cmdUpdateControl2, 0xcf, cmdActivate}))

	// Clear goes back to the full waveform before blanking.
	start = len(rec.Ops)
	require.NoError(t, e.Clear())
	w = written(rec.Ops[start:])
	require.Equal(t, byte(cmdSoftReset), w[0])
}

func TestEPD154V2BusyTimeout(t *testing.T) {
	old := busyTimeout
	busyTimeout = 20 * time.Millisecond
	t.Cleanup(func() { busyTimeout = old })

	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154V2FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)

	busy.Lock()
	busy.L = gpio.High
	busy.Unlock()
	err = e.Clear()
	require.True(t, errors.Is(err, ErrBusyTimeout), "got %v", err)

	busy.Lock()
	busy.L = gpio.Low
	busy.Unlock()
	require.NoError(t, e.Clear())
}

func TestEPD154M09Update(t *testing.T) {
	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154M09FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 200, 200), e.Bounds())

	start := len(rec.Ops)
	require.NoError(t, e.UpdateDisplay(image.NewGray(image.Rect(0, 0, 200, 200)), false))
	want := join(
		[]byte{cmdOldFrame}, frameOf(0xff),
		[]byte{cmdNewFrame}, frameOf(0x00),
		[]byte{cmdRefresh},
	)
	require.Equal(t, want, written(rec.Ops[start:]))
}

func TestBulkWritesAreChunked(t *testing.T) {
	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154M09FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)

	start := len(rec.Ops)
	require.NoError(t, e.Clear())
	for _, op := range rec.Ops[start:] {
		require.LessOrEqual(t, len(op.W), maxTxSize)
	}
}

func TestEPD154V2CloseBlanksAndSleeps(t *testing.T) {
	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154V2FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)

	start := len(rec.Ops)
	require.NoError(t, e.Close())
	w := written(rec.Ops[start:])
	require.Equal(t, byte(cmdSoftReset), w[0])
	require.True(t, bytes.HasSuffix(w, join(
		[]byte{cmdWriteBlackRAM}, frameOf(0xff),
		[]byte{cmdWriteRedRAM}, frameOf(0xff),
		[]byte{cmdUpdateControl2, 0xc7, cmdActivate},
		[]byte{cmdDeepSleep, 0x01},
	)))
}

func TestEPD154M09CloseBlanksAndSleeps(t *testing.T) {
	rec := &spitest.Record{}
	dc, cs, rst, busy := testPins()
	e, err := NewEPD154M09FromSPI(rec, dc, cs, rst, busy)
	require.NoError(t, err)

	start := len(rec.Ops)
	require.NoError(t, e.Close())
	want := join(
		[]byte{cmdOldFrame}, frameOf(0xff),
		[]byte{cmdNewFrame}, frameOf(0xff),
		[]byte{cmdRefresh},
		[]byte{cmdPowerOff, cmdSleep, 0xA5},
	)
	require.Equal(t, want, written(rec.Ops[start:]))
}
