package playback

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fogleman/ease"
	"github.com/rs/zerolog/log"

	"github.com/ledgrid/matrixd/internal/led"
)

const (
	// blankInterval is how often a blank frame is re-pushed while the
	// display is cleared or nothing is installed yet.
	blankInterval = 250 * time.Millisecond

	// healthFailThreshold is how many consecutive push failures mark
	// the loop unhealthy in status reports.
	healthFailThreshold = 5
)

// Loop is the perpetual scheduling loop. It reads State, pushes the
// current frame to the driver, sleeps for the frame duration and
// advances the cursor. It never terminates on push errors; sustained
// failure is surfaced through Healthy.
type Loop struct {
	state *State
	drv   led.Driver
	clk   Clock

	softStart time.Duration
	started   time.Time

	lastBrightness int

	pushed      atomic.Uint64
	consecFails atomic.Uint32
}

func NewLoop(state *State, drv led.Driver, clk Clock, softStart time.Duration) *Loop {
	if clk == nil {
		clk = SystemClock
	}
	return &Loop{state: state, drv: drv, clk: clk, softStart: softStart}
}

// Run drives the loop until ctx is cancelled. It is meant to run on
// its own goroutine for the process lifetime.
func (l *Loop) Run(ctx context.Context) {
	l.started = l.clk.Now()
	for ctx.Err() == nil {
		snap := l.state.Snapshot()

		if snap.Empty || snap.Blanked {
			l.record(l.drv.Blank())
			l.clk.Sleep(blankInterval)
			continue
		}

		if b := l.rampedBrightness(snap.Brightness); b != l.lastBrightness {
			if err := l.drv.SetBrightness(b); err != nil {
				log.Warn().Err(err).Int("brightness", b).Msg("set brightness failed")
			} else {
				l.lastBrightness = b
			}
		}

		l.record(l.drv.Write(snap.Frame))
		l.clk.Sleep(snap.Duration)
		l.state.Advance(snap.ID)
	}
}

// record books a push result into the health counters. A single push
// failure is logged and absorbed; the loop keeps its cadence.
func (l *Loop) record(err error) {
	if err != nil {
		n := l.consecFails.Add(1)
		log.Error().Err(err).Uint32("consecutive", n).Msg("hardware push failed")
		return
	}
	l.consecFails.Store(0)
	l.pushed.Add(1)
}

// rampedBrightness applies the soft-start ramp: brightness eases from
// 1 to the target over the configured window after startup.
func (l *Loop) rampedBrightness(target int) int {
	if l.softStart <= 0 {
		return target
	}
	elapsed := l.clk.Now().Sub(l.started)
	if elapsed >= l.softStart {
		return target
	}
	p := ease.InOutQuad(float64(elapsed) / float64(l.softStart))
	b := 1 + int(p*float64(target-1))
	if b < 1 {
		b = 1
	}
	if b > target {
		b = target
	}
	return b
}

// Healthy reports whether the sink is accepting frames.
func (l *Loop) Healthy() bool {
	return l.consecFails.Load() < healthFailThreshold
}

// FramesPushed returns the total number of successful pushes.
func (l *Loop) FramesPushed() uint64 {
	return l.pushed.Load()
}
