// Package gifdec turns raw GIF bytes into fixed-size RGB frame
// sequences ready for the playback engine.
package gifdec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"time"

	xdraw "golang.org/x/image/draw"
)

var (
	// ErrPayloadTooLarge means the input exceeded the configured byte cap.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrInvalidFormat means the input is not a decodable GIF container.
	ErrInvalidFormat = errors.New("invalid animation format")
	// ErrEmptyAnimation means the container decoded to zero frames.
	ErrEmptyAnimation = errors.New("animation has no frames")
)

const (
	// DefaultFrameDuration replaces missing or zero container timing.
	DefaultFrameDuration = 100 * time.Millisecond
	// MinFrameDuration is the floor applied to container timing.
	MinFrameDuration = 10 * time.Millisecond
)

// Frame is one fixed-size RGB pixel grid plus its display duration.
// Pix is row-major, 3 bytes per pixel, length rows*cols*3.
type Frame struct {
	Pix      []byte
	Duration time.Duration
}

// Animation is an ordered, non-empty sequence of frames, all sized to
// the matrix dimensions it was decoded for.
type Animation struct {
	Frames    []Frame
	Rows      int
	Cols      int
	Truncated bool
	SrcBytes  int
}

// Options bound the decode work. Zero MaxBytes/MaxFrames means
// unlimited.
type Options struct {
	Rows      int
	Cols      int
	MaxBytes  int
	MaxFrames int
}

var gifHeaders = [][]byte{[]byte("GIF87a"), []byte("GIF89a")}

func hasGIFHeader(data []byte) bool {
	for _, h := range gifHeaders {
		if bytes.HasPrefix(data, h) {
			return true
		}
	}
	return false
}

// Normalize recovers a GIF byte stream from tolerant transports: if the
// payload is not headed by a GIF signature it is tried as base64, then
// trimmed to the embedded signature..trailer span if one exists. The
// input is returned unchanged when no recovery applies.
func Normalize(data []byte) []byte {
	if len(data) == 0 || hasGIFHeader(data) {
		return data
	}
	if dec, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(data))); err == nil {
		data = dec
	}
	start := -1
	for _, h := range gifHeaders {
		if i := bytes.Index(data, h); i != -1 && (start == -1 || i < start) {
			start = i
		}
	}
	if start == -1 {
		return data
	}
	end := bytes.LastIndexByte(data, 0x3B) // GIF trailer
	if end >= start {
		return data[start : end+1]
	}
	return data[start:]
}

// Decode validates and decodes a GIF into matrix-sized RGB frames.
// Oversized inputs fail before any decode work. Containers with more
// than MaxFrames frames are truncated, not rejected, and flagged.
func Decode(data []byte, o Options) (*Animation, error) {
	if o.Rows <= 0 || o.Cols <= 0 {
		return nil, fmt.Errorf("invalid matrix size %dx%d", o.Rows, o.Cols)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}
	if o.MaxBytes > 0 && len(data) > o.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds cap %d", ErrPayloadTooLarge, len(data), o.MaxBytes)
	}
	if !hasGIFHeader(data) {
		return nil, fmt.Errorf("%w: missing GIF signature", ErrInvalidFormat)
	}

	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if len(g.Image) == 0 {
		return nil, ErrEmptyAnimation
	}

	n := len(g.Image)
	truncated := false
	if o.MaxFrames > 0 && n > o.MaxFrames {
		n = o.MaxFrames
		truncated = true
	}

	srcW, srcH := g.Config.Width, g.Config.Height
	if srcW == 0 || srcH == 0 {
		b := g.Image[0].Bounds()
		srcW, srcH = b.Dx(), b.Dy()
	}

	anim := &Animation{
		Frames:    make([]Frame, 0, n),
		Rows:      o.Rows,
		Cols:      o.Cols,
		Truncated: truncated,
		SrcBytes:  len(data),
	}

	// GIF frames are deltas against a shared canvas; composite each
	// frame before resampling so partial frames render correctly.
	canvas := image.NewRGBA(image.Rect(0, 0, srcW, srcH))
	var restore *image.RGBA
	for i := 0; i < n; i++ {
		src := g.Image[i]
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			restore = image.NewRGBA(canvas.Rect)
			copy(restore.Pix, canvas.Pix)
		}
		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)

		anim.Frames = append(anim.Frames, Frame{
			Pix:      resampleRGB(canvas, o.Cols, o.Rows),
			Duration: frameDuration(g, i),
		})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, src.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			if restore != nil {
				copy(canvas.Pix, restore.Pix)
			}
		}
	}
	return anim, nil
}

// frameDuration reads the container delay (centiseconds) for frame i.
func frameDuration(g *gif.GIF, i int) time.Duration {
	d := time.Duration(0)
	if i < len(g.Delay) {
		d = time.Duration(g.Delay[i]) * 10 * time.Millisecond
	}
	if d <= 0 {
		return DefaultFrameDuration
	}
	if d < MinFrameDuration {
		return MinFrameDuration
	}
	return d
}

// resampleRGB scales src to cols x rows with nearest-neighbor sampling
// and flattens it to packed RGB. Aspect ratio is not preserved; the
// full destination grid is always filled.
func resampleRGB(src *image.RGBA, cols, rows int) []byte {
	scaled := src
	if src.Rect.Dx() != cols || src.Rect.Dy() != rows {
		scaled = image.NewRGBA(image.Rect(0, 0, cols, rows))
		xdraw.NearestNeighbor.Scale(scaled, scaled.Rect, src, src.Rect, xdraw.Src, nil)
	}
	out := make([]byte, rows*cols*3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			o := scaled.PixOffset(scaled.Rect.Min.X+x, scaled.Rect.Min.Y+y)
			d := (y*cols + x) * 3
			out[d+0] = scaled.Pix[o+0]
			out[d+1] = scaled.Pix[o+1]
			out[d+2] = scaled.Pix[o+2]
		}
	}
	return out
}
