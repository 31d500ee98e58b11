package server

import (
	"sync"
	"time"

	"github.com/ledgrid/matrixd/internal/led"
)

// previewDriver tees frames written to the hardware into the websocket
// preview, throttled so browser clients are not flooded at high frame
// rates.
type previewDriver struct {
	inner led.Driver
	srv   *Server

	mu       sync.Mutex
	throttle time.Duration
	lastEmit time.Time
	blankBuf []byte
}

// Tee wraps a hardware driver so every pushed frame also reaches the
// preview clients.
func (s *Server) Tee(inner led.Driver) led.Driver {
	return &previewDriver{
		inner:    inner,
		srv:      s,
		throttle: 50 * time.Millisecond, // ~20 FPS to the UI
		blankBuf: make([]byte, s.rows*s.cols*3),
	}
}

func (d *previewDriver) Write(rgb []byte) error {
	err := d.inner.Write(rgb)
	if err == nil {
		d.emit(rgb)
	}
	return err
}

func (d *previewDriver) Blank() error {
	err := d.inner.Blank()
	if err == nil {
		d.emit(d.blankBuf)
	}
	return err
}

func (d *previewDriver) SetBrightness(v int) error { return d.inner.SetBrightness(v) }
func (d *previewDriver) Close() error              { return d.inner.Close() }

func (d *previewDriver) emit(rgb []byte) {
	d.mu.Lock()
	now := time.Now()
	if d.lastEmit.Add(d.throttle).After(now) {
		d.mu.Unlock()
		return
	}
	d.lastEmit = now
	d.mu.Unlock()
	d.srv.BroadcastFrame(rgb)
}
