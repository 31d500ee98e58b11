package led

import (
	"fmt"
	"sync"
)

// Sim is a headless driver that keeps the last frame in memory. Used
// when no hardware is present and by tests.
type Sim struct {
	mu         sync.Mutex
	count      int
	brightness int
	frames     uint64
	last       []byte
}

func NewSim(count int) *Sim {
	return &Sim{count: count, brightness: 100}
}

func (s *Sim) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rgb) != s.count*3 {
		return fmt.Errorf("rgb length %d does not match count %d", len(rgb), s.count)
	}
	s.last = append(s.last[:0], rgb...)
	s.frames++
	return nil
}

func (s *Sim) SetBrightness(v int) error {
	if v < 1 || v > 100 {
		return fmt.Errorf("brightness %d out of range 1..100", v)
	}
	s.mu.Lock()
	s.brightness = v
	s.mu.Unlock()
	return nil
}

func (s *Sim) Blank() error {
	return s.Write(make([]byte, s.count*3))
}

func (s *Sim) Close() error { return nil }

// LastFrame returns a copy of the most recently written frame.
func (s *Sim) LastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

// Frames returns the number of frames written so far.
func (s *Sim) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Brightness returns the current brightness setting.
func (s *Sim) Brightness() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness
}
