package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock advances simulated time on every sleep and cancels the
// loop context once the sleep budget is spent.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	limit   int
	cancel  context.CancelFunc
	onSleep func(n int) // called after the nth sleep completes
}

func newFakeClock(limit int, cancel context.CancelFunc) *fakeClock {
	return &fakeClock{now: time.Unix(0, 0), limit: limit, cancel: cancel}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	done := n >= c.limit
	c.mu.Unlock()
	if c.onSleep != nil {
		c.onSleep(n)
	}
	if done {
		c.cancel()
	}
}

func (c *fakeClock) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

// fakeDriver records pushes; each frame is identified by its first byte.
type fakeDriver struct {
	mu         sync.Mutex
	fail       bool
	firsts     []byte
	blanks     int
	brightness []int
}

func (d *fakeDriver) Write(rgb []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("push rejected")
	}
	d.firsts = append(d.firsts, rgb[0])
	return nil
}

func (d *fakeDriver) SetBrightness(v int) error {
	d.mu.Lock()
	d.brightness = append(d.brightness, v)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Blank() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("blank rejected")
	}
	d.blanks++
	return nil
}

func (d *fakeDriver) Close() error { return nil }

func runLoop(t *testing.T, l *Loop, ctx context.Context) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopPushesFramesInOrder(t *testing.T) {
	s, _ := NewState(70)
	s.Install(testAnim(3, 100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	clk := newFakeClock(4, cancel)
	drv := &fakeDriver{}
	l := NewLoop(s, drv, clk, 0)
	runLoop(t, l, ctx)

	want := []byte{0, 1, 2, 0}
	if len(drv.firsts) != len(want) {
		t.Fatalf("pushed %d frames, want %d", len(drv.firsts), len(want))
	}
	for i := range want {
		if drv.firsts[i] != want[i] {
			t.Fatalf("push order %v, want %v", drv.firsts, want)
		}
	}
	if got := clk.elapsed(); got != 400*time.Millisecond {
		t.Fatalf("simulated time %v, want 400ms", got)
	}
	if l.FramesPushed() != 4 {
		t.Fatalf("frames pushed = %d, want 4", l.FramesPushed())
	}
}

func TestLoopBlanksWhenCleared(t *testing.T) {
	s, _ := NewState(70)
	s.Clear()

	ctx, cancel := context.WithCancel(context.Background())
	clk := newFakeClock(2, cancel)
	drv := &fakeDriver{}
	l := NewLoop(s, drv, clk, 0)
	runLoop(t, l, ctx)

	if drv.blanks != 2 {
		t.Fatalf("blanks = %d, want 2", drv.blanks)
	}
	if len(drv.firsts) != 0 {
		t.Fatalf("unexpected frame pushes while blanked: %v", drv.firsts)
	}
}

func TestLoopSwapMidPlayback(t *testing.T) {
	s, _ := NewState(70)
	s.Install(testAnim(3, 100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	clk := newFakeClock(4, cancel)
	drv := &fakeDriver{}
	l := NewLoop(s, drv, clk, 0)

	// Install a 2-frame animation tagged 10,11 right after the first
	// frame of A has been pushed.
	b := testAnim(2, 100*time.Millisecond)
	b.Frames[0].Pix[0] = 10
	b.Frames[1].Pix[0] = 11
	clk.onSleep = func(n int) {
		if n == 1 {
			s.Install(b)
		}
	}
	runLoop(t, l, ctx)

	// The next iteration after the swap picks up B at frame 0.
	want := []byte{0, 10, 11, 10}
	if len(drv.firsts) != len(want) {
		t.Fatalf("pushed %v, want %v", drv.firsts, want)
	}
	for i := range want {
		if drv.firsts[i] != want[i] {
			t.Fatalf("pushed %v, want %v", drv.firsts, want)
		}
	}
}

func TestLoopSurvivesPushFailures(t *testing.T) {
	s, _ := NewState(70)
	s.Install(testAnim(2, 10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	clk := newFakeClock(8, cancel)
	drv := &fakeDriver{fail: true}
	l := NewLoop(s, drv, clk, 0)
	runLoop(t, l, ctx)

	if l.Healthy() {
		t.Fatal("loop should be unhealthy after sustained push failures")
	}
	if l.FramesPushed() != 0 {
		t.Fatalf("frames pushed = %d, want 0", l.FramesPushed())
	}
	// The loop itself kept running: it slept through its full budget.
	if len(clk.sleeps) != 8 {
		t.Fatalf("loop stopped early after %d ticks", len(clk.sleeps))
	}
}

func TestLoopSoftStartRampsBrightness(t *testing.T) {
	s, _ := NewState(100)
	s.Install(testAnim(4, 100*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	clk := newFakeClock(4, cancel)
	drv := &fakeDriver{}
	l := NewLoop(s, drv, clk, 200*time.Millisecond)
	runLoop(t, l, ctx)

	// Iterations at t=0, 100ms, 200ms: ramp 1 -> 50 -> 100, then steady.
	want := []int{1, 50, 100}
	if len(drv.brightness) != len(want) {
		t.Fatalf("brightness calls %v, want %v", drv.brightness, want)
	}
	for i := range want {
		if drv.brightness[i] != want[i] {
			t.Fatalf("brightness calls %v, want %v", drv.brightness, want)
		}
	}
}
