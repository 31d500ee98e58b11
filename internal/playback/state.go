// Package playback owns what the matrix is currently showing: the
// installed animation, the loop cursor, brightness and the blanked
// flag, plus the render loop that drives frames to the hardware.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgrid/matrixd/internal/gifdec"
)

// ErrInvalidBrightness means a brightness value fell outside 1..100.
var ErrInvalidBrightness = errors.New("brightness out of range 1..100")

// current is one immutable playback generation. Install and Clear
// replace the whole struct, so a reader can never pair a new animation
// with a stale cursor.
type current struct {
	anim        *gifdec.Animation // nil when blanked
	id          uuid.UUID
	cursor      int
	blanked     bool
	installedAt time.Time
}

// State is the single shared playback state. The render loop reads it
// through Snapshot/Advance; control operations replace it wholesale.
type State struct {
	mu         sync.RWMutex
	cur        *current
	brightness int
}

// Snapshot is a self-consistent view for one render iteration.
type Snapshot struct {
	Frame      []byte
	Duration   time.Duration
	Brightness int
	Blanked    bool
	Empty      bool // nothing installed yet, not even a blank
	ID         uuid.UUID
	Cursor     int
	FrameCount int
	Truncated  bool
}

func NewState(brightness int) (*State, error) {
	if brightness < 1 || brightness > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBrightness, brightness)
	}
	return &State{brightness: brightness}, nil
}

// Install replaces the current animation in one step. The cursor always
// restarts at zero. Returns the generation id assigned to the animation.
func (s *State) Install(a *gifdec.Animation) uuid.UUID {
	id := uuid.New()
	next := &current{anim: a, id: id, installedAt: time.Now()}
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return id
}

// Clear installs a blanked generation: actively display nothing, as
// opposed to never having shown anything.
func (s *State) Clear() {
	next := &current{blanked: true, id: uuid.New(), installedAt: time.Now()}
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
}

// SetBrightness validates and stores the brightness level.
func (s *State) SetBrightness(v int) error {
	if v < 1 || v > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidBrightness, v)
	}
	s.mu.Lock()
	s.brightness = v
	s.mu.Unlock()
	return nil
}

func (s *State) Brightness() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.brightness
}

// Snapshot returns the frame at the cursor and the settings that apply
// to it. It is the only read path the render loop uses.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Brightness: s.brightness}
	if s.cur == nil {
		snap.Empty = true
		return snap
	}
	snap.ID = s.cur.id
	snap.Blanked = s.cur.blanked
	if s.cur.anim == nil {
		return snap
	}
	f := s.cur.anim.Frames[s.cur.cursor]
	snap.Frame = f.Pix
	snap.Duration = f.Duration
	snap.Cursor = s.cur.cursor
	snap.FrameCount = len(s.cur.anim.Frames)
	snap.Truncated = s.cur.anim.Truncated
	return snap
}

// Advance moves the cursor one frame forward, wrapping at the end.
// The generation id guards against advancing an animation that was
// installed while the caller slept: a freshly swapped-in animation
// must start at frame zero, so a stale id is a no-op.
func (s *State) Advance(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.anim == nil || s.cur.id != id {
		return
	}
	s.cur.cursor = (s.cur.cursor + 1) % len(s.cur.anim.Frames)
}
