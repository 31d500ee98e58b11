// Package bootanim generates the idle animation shown before any GIF
// has been uploaded or persisted.
package bootanim

import (
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ledgrid/matrixd/internal/gifdec"
)

const (
	frames   = 48
	frameDur = 60 * time.Millisecond
)

// Generate builds a looping diagonal hue sweep sized for the matrix.
func Generate(rows, cols int) *gifdec.Animation {
	a := &gifdec.Animation{Rows: rows, Cols: cols}
	span := rows + cols - 2
	if span < 1 {
		span = 1
	}
	for f := 0; f < frames; f++ {
		phase := float64(f) / frames
		pix := make([]byte, rows*cols*3)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				h := float64(x+y)/float64(span) + phase
				h -= float64(int(h))
				c := colorful.Hsv(h*360, 1, 0.6)
				r, g, b := c.Clamped().RGB255()
				i := (y*cols + x) * 3
				pix[i+0] = r
				pix[i+1] = g
				pix[i+2] = b
			}
		}
		a.Frames = append(a.Frames, gifdec.Frame{Pix: pix, Duration: frameDur})
	}
	return a
}
