package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// SPI drives an NRZ LED matrix (WS2812-class) through an SPI port.
// Brightness is applied in software by scaling pixel values before the
// NRZ encode; the chips have no brightness register.
type SPI struct {
	mu         sync.Mutex
	port       spi.PortCloser
	dev        *nrzled.Dev
	count      int
	brightness int
	scratch    []byte
}

// NewSPI initializes the host, opens the named SPI port (empty selects
// the first available) and prepares an NRZ encoder for count pixels.
func NewSPI(portName string, count int, speedHz int) (*SPI, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", count)
	}
	if speedHz <= 0 {
		speedHz = 2500000
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("open spi port: %w", err)
	}
	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: count,
		Channels:  3,
		Freq:      physic.Frequency(speedHz) * physic.Hertz,
	})
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("nrzled init: %w", err)
	}
	return newFromDev(port, dev, count), nil
}

// newFromDev wires an already-constructed nrzled device; split out so
// tests can substitute a playback SPI port.
func newFromDev(port spi.PortCloser, dev *nrzled.Dev, count int) *SPI {
	return &SPI{
		port:       port,
		dev:        dev,
		count:      count,
		brightness: 100,
		scratch:    make([]byte, count*3),
	}
}

func (s *SPI) Write(rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return fmt.Errorf("spi driver closed")
	}
	if len(rgb) != s.count*3 {
		return fmt.Errorf("rgb length %d does not match count %d", len(rgb), s.count)
	}
	if s.brightness == 100 {
		copy(s.scratch, rgb)
	} else {
		for i, v := range rgb {
			s.scratch[i] = byte(int(v) * s.brightness / 100)
		}
	}
	if _, err := s.dev.Write(s.scratch); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

func (s *SPI) SetBrightness(v int) error {
	if v < 1 || v > 100 {
		return fmt.Errorf("brightness %d out of range 1..100", v)
	}
	s.mu.Lock()
	s.brightness = v
	s.mu.Unlock()
	return nil
}

func (s *SPI) Blank() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return fmt.Errorf("spi driver closed")
	}
	return s.dev.Halt()
}

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev = nil
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}
