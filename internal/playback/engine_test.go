package playback

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"testing"
	"time"

	"github.com/ledgrid/matrixd/internal/gifdec"
)

func encodeSolidGIF(t *testing.T, w, h, frames int) []byte {
	t.Helper()
	g := &gif.GIF{Config: image.Config{Width: w, Height: h}}
	pal := color.Palette{color.Black, color.White}
	for i := 0; i < frames; i++ {
		img := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := NewState(70)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return NewEngine(s, nil, gifdec.Options{Rows: 8, Cols: 8, MaxBytes: 1 << 20, MaxFrames: 100})
}

func TestEngineReplaceAnimation(t *testing.T) {
	e := newTestEngine(t)
	var persisted []byte
	e.Persist = func(data []byte) error {
		persisted = append([]byte(nil), data...)
		return nil
	}
	data := encodeSolidGIF(t, 8, 8, 3)
	res, err := e.ReplaceAnimation(data)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if res.Frames != 3 || res.Truncated {
		t.Fatalf("unexpected result %+v", res)
	}
	if !bytes.Equal(persisted, data) {
		t.Fatal("persist did not receive the uploaded payload")
	}
	st := e.Status()
	if st.FrameCount != 3 || st.Blanked {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.AnimationID != res.ID {
		t.Fatal("status id does not match install result")
	}
}

func TestEngineDecodeFailureLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.ReplaceAnimation(encodeSolidGIF(t, 8, 8, 2)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	before := e.Status()

	_, err := e.ReplaceAnimation([]byte("definitely not a gif"))
	if !errors.Is(err, gifdec.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	after := e.Status()
	if after.AnimationID != before.AnimationID || after.FrameCount != before.FrameCount {
		t.Fatalf("failed upload mutated state: %+v -> %+v", before, after)
	}
}

func TestEngineClearThenStatus(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.ReplaceAnimation(encodeSolidGIF(t, 8, 8, 2)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	e.Clear()
	st := e.Status()
	if !st.Blanked {
		t.Fatal("status must report blanked after clear")
	}
	if st.FrameCount != 0 {
		t.Fatalf("blanked status reports %d frames", st.FrameCount)
	}
}

func TestEngineInstallDecoded(t *testing.T) {
	e := newTestEngine(t)
	a := testAnim(2, 50*time.Millisecond)
	id := e.InstallDecoded(a)
	if e.Status().AnimationID != id {
		t.Fatal("installed id not visible in status")
	}
}
