package playback

import "time"

// Clock abstracts sleeping and time reads so tests can simulate
// elapsed playback without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the clock used outside tests.
var SystemClock Clock = realClock{}
