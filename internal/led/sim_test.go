package led_test

import (
	"testing"

	"github.com/ledgrid/matrixd/internal/led"
)

func TestSimWriteLengthCheck(t *testing.T) {
	s := led.NewSim(4)
	if err := s.Write(make([]byte, 4*3)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(make([]byte, 5)); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if got := s.Frames(); got != 1 {
		t.Fatalf("expected 1 frame written, got %d", got)
	}
}

func TestSimBlank(t *testing.T) {
	s := led.NewSim(2)
	_ = s.Write([]byte{255, 255, 255, 255, 255, 255})
	if err := s.Blank(); err != nil {
		t.Fatalf("blank: %v", err)
	}
	for i, v := range s.LastFrame() {
		if v != 0 {
			t.Fatalf("pixel byte %d not cleared: %d", i, v)
		}
	}
}

func TestSimBrightnessRange(t *testing.T) {
	s := led.NewSim(1)
	for _, v := range []int{0, 101, -5} {
		if err := s.SetBrightness(v); err == nil {
			t.Fatalf("expected error for brightness %d", v)
		}
	}
	for _, v := range []int{1, 100} {
		if err := s.SetBrightness(v); err != nil {
			t.Fatalf("brightness %d: %v", v, err)
		}
	}
}
