// Package config loads the matrixd YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SPICfg struct {
	Dev     string `yaml:"dev"`      // e.g. /dev/spidev0.0; empty selects the first port
	SpeedHz int    `yaml:"speed_hz"` // e.g. 2500000
}

type MQTTTopics struct {
	Animation string `yaml:"animation"`
	Cmd       string `yaml:"cmd"`
	Status    string `yaml:"status"`
}

type MQTTCfg struct {
	URL      string     `yaml:"url"` // empty disables the MQTT surface
	Username string     `yaml:"username"`
	Password string     `yaml:"password"`
	Topics   MQTTTopics `yaml:"topics"`
}

type Config struct {
	Rows                 int    `yaml:"rows"`
	Cols                 int    `yaml:"cols"`
	HardwareMapping      string `yaml:"hardware_mapping"`
	DisableHardwarePulse bool   `yaml:"disable_hardware_pulse"`

	Brightness  int `yaml:"brightness"`
	SoftStartMs int `yaml:"soft_start_ms"`

	MaxUploadBytes int `yaml:"max_upload_bytes"` // 0 = unlimited
	MaxFrames      int `yaml:"max_frames"`       // 0 = unlimited

	RunDir     string `yaml:"run_dir"`
	DefaultGIF string `yaml:"default_gif"`

	Addr      string   `yaml:"addr"`
	AllowNets []string `yaml:"allow_nets"` // CIDR allowlist; empty allows all

	Driver string  `yaml:"driver"` // "spi" | "sim"
	SPI    SPICfg  `yaml:"spi,omitempty"`
	MQTT   MQTTCfg `yaml:"mqtt,omitempty"`
}

// Default returns the configuration used when no file or flag says
// otherwise.
func Default() *Config {
	return &Config{
		Rows:            64,
		Cols:            64,
		HardwareMapping: "regular",
		Brightness:      70,
		SoftStartMs:     800,
		RunDir:          "/run/ledmatrix",
		Addr:            ":9090",
		Driver:          "sim",
		SPI:             SPICfg{SpeedHz: 2500000},
		MQTT: MQTTCfg{
			Topics: MQTTTopics{
				Animation: "home/ledmatrix/animation",
				Cmd:       "home/ledmatrix/cmd",
				Status:    "home/ledmatrix/status",
			},
		},
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("invalid matrix size %dx%d", c.Rows, c.Cols)
	}
	if c.Brightness < 1 || c.Brightness > 100 {
		return fmt.Errorf("brightness %d out of range 1..100", c.Brightness)
	}
	if c.MaxUploadBytes < 0 || c.MaxFrames < 0 {
		return fmt.Errorf("upload caps must not be negative")
	}
	return nil
}
