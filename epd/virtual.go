package epd

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/disintegration/imaging"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// VirtualPanel runs the same image pipeline as the hardware panels but keeps
// the frame in memory. When snapshot is set each frame is also written there
// as an image file (the format follows the extension).
type VirtualPanel struct {
	mu       sync.Mutex
	frame    *image1bit.VerticalLSB
	snapshot string
	updates  int
}

func NewVirtual(width, height int, snapshot string) (*VirtualPanel, error) {
	v := &VirtualPanel{
		frame:    image1bit.NewVerticalLSB(image.Rect(0, 0, width, height)),
		snapshot: snapshot,
	}
	if err := v.Clear(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VirtualPanel) UpdateDisplay(img image.Image, partial bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frame = Prepare(img, v.frame.Bounds())
	v.updates++
	return v.save()
}

func (v *VirtualPanel) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	draw.Draw(v.frame, v.frame.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	return v.save()
}

func (v *VirtualPanel) Close() error {
	return nil
}

func (v *VirtualPanel) Bounds() image.Rectangle {
	return v.frame.Bounds()
}

// Frame returns a copy of the frame currently shown.
func (v *VirtualPanel) Frame() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()
	return imaging.Clone(v.frame)
}

// Updates counts UpdateDisplay calls.
func (v *VirtualPanel) Updates() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updates
}

func (v *VirtualPanel) save() error {
	if v.snapshot == "" {
		return nil
	}
	return wrap("snapshot", imaging.Save(v.frame, v.snapshot))
}
