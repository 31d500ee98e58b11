package playback

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ledgrid/matrixd/internal/gifdec"
)

// Engine is the control surface: the only mutation entry points for
// playback state. HTTP and MQTT frontends both talk to it.
type Engine struct {
	state *State
	loop  *Loop
	opts  gifdec.Options

	// Persist, when set, receives every successfully installed GIF so
	// it survives restarts. Persistence failures are logged, never
	// surfaced to the uploader.
	Persist func(data []byte) error

	startedAt time.Time
}

// InstallResult describes a successful animation replacement.
type InstallResult struct {
	ID        uuid.UUID `json:"id"`
	Frames    int       `json:"frames"`
	Truncated bool      `json:"truncated"`
	Bytes     int       `json:"bytes"`
}

// Status is the externally visible playback state.
type Status struct {
	Brightness   int       `json:"brightness"`
	FrameCount   int       `json:"frame_count"`
	Blanked      bool      `json:"blanked"`
	Healthy      bool      `json:"healthy"`
	AnimationID  uuid.UUID `json:"animation_id"`
	Truncated    bool      `json:"truncated"`
	FramesPushed uint64    `json:"frames_pushed"`
	UptimeS      float64   `json:"uptime_s"`
}

func NewEngine(state *State, loop *Loop, opts gifdec.Options) *Engine {
	return &Engine{state: state, loop: loop, opts: opts, startedAt: time.Now()}
}

// AttachLoop wires the render loop for health reporting. The loop is
// constructed after the engine because its driver may tee frames into
// surfaces that themselves need the engine.
func (e *Engine) AttachLoop(l *Loop) { e.loop = l }

// ReplaceAnimation decodes and installs a new animation. On decode
// failure the current animation keeps playing untouched and the decode
// error is returned to the caller.
func (e *Engine) ReplaceAnimation(data []byte) (InstallResult, error) {
	anim, err := gifdec.Decode(data, e.opts)
	if err != nil {
		return InstallResult{}, err
	}
	id := e.state.Install(anim)
	log.Info().
		Str("id", id.String()).
		Int("frames", len(anim.Frames)).
		Bool("truncated", anim.Truncated).
		Int("bytes", anim.SrcBytes).
		Msg("animation installed")
	if e.Persist != nil {
		if err := e.Persist(data); err != nil {
			log.Warn().Err(err).Msg("persist animation failed")
		}
	}
	return InstallResult{
		ID:        id,
		Frames:    len(anim.Frames),
		Truncated: anim.Truncated,
		Bytes:     anim.SrcBytes,
	}, nil
}

// SetBrightness validates and applies a new brightness level.
func (e *Engine) SetBrightness(v int) error {
	if err := e.state.SetBrightness(v); err != nil {
		return err
	}
	log.Info().Int("brightness", v).Msg("brightness changed")
	return nil
}

// Clear blanks the display.
func (e *Engine) Clear() {
	e.state.Clear()
	log.Info().Msg("display cleared")
}

// InstallDecoded installs an animation that was produced outside the
// upload path, such as the generated boot animation.
func (e *Engine) InstallDecoded(anim *gifdec.Animation) uuid.UUID {
	return e.state.Install(anim)
}

// Status reports the current playback state and loop health.
func (e *Engine) Status() Status {
	snap := e.state.Snapshot()
	st := Status{
		Brightness:  snap.Brightness,
		FrameCount:  snap.FrameCount,
		Blanked:     snap.Blanked,
		AnimationID: snap.ID,
		Truncated:   snap.Truncated,
		Healthy:     true,
		UptimeS:     time.Since(e.startedAt).Seconds(),
	}
	if e.loop != nil {
		st.Healthy = e.loop.Healthy()
		st.FramesPushed = e.loop.FramesPushed()
	}
	return st
}
