// Package led abstracts the physical matrix output.
package led

// Driver abstracts an LED matrix output sink.
type Driver interface {
	// Write pushes an RGB frame to hardware. len(rgb) must be 3*N.
	Write(rgb []byte) error
	// SetBrightness sets output brightness, 1..100.
	SetBrightness(v int) error
	// Blank drives every pixel off.
	Blank() error
	// Close releases resources.
	Close() error
}
