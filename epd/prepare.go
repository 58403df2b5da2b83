package epd

import (
	"image"
	"image/draw"

	"github.com/MaxHalford/halfgone"
	"github.com/disintegration/imaging"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Prepare scales img to fit inside bounds, centres it on a white background
// and reduces it to the 1-bit frame the panels display. Images that are
// already pure black and white are not dithered.
func Prepare(img image.Image, bounds image.Rectangle) *image1bit.VerticalLSB {
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, image.White, image.Point{}, draw.Src)

	src := img
	if img.Bounds().Size() != bounds.Size() {
		src = imaging.Fit(img, bounds.Dx(), bounds.Dy(), imaging.Lanczos)
	}
	sb := src.Bounds()
	at := bounds.Min.Add(image.Pt((bounds.Dx()-sb.Dx())/2, (bounds.Dy()-sb.Dy())/2))
	draw.Draw(gray, image.Rectangle{at, at.Add(sb.Size())}, src, sb.Min, draw.Over)

	var out image.Image = gray
	if !bilevel(gray) {
		out = halfgone.FloydSteinbergDitherer{}.Apply(gray)
	}

	frame := image1bit.NewVerticalLSB(bounds)
	draw.Draw(frame, bounds, out, bounds.Min, draw.Src)
	return frame
}

func bilevel(g *image.Gray) bool {
	for _, p := range g.Pix {
		if p != 0 && p != 0xff {
			return false
		}
	}
	return true
}
