// Package config loads the host tool's configuration from an optional yaml
// file plus command-line overrides.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config defines the global host configuration and the structure of the
// configuration file.
type Config struct {
	Device string      `yaml:"device"`
	Baud   int         `yaml:"baud"`
	Flag   FlagConfig  `yaml:"-"`
	Debug  DebugConfig `yaml:"debug"`
}

// FlagConfig holds the values of the command-line flags.
type FlagConfig struct {
	ConfigFile string
	Device     string
	Baud       int
	LogLevel   string
}

// DebugConfig defines the logging section of the configuration file.
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

// NewConfig returns a configuration with usable defaults.
func NewConfig() *Config {
	return &Config{
		Device: "/dev/ttyACM0",
		Baud:   1000000,
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
	}
}

// LoadConfig reads the configuration file (if one was named), applies flag
// overrides, and opens the log destination.
func (c *Config) LoadConfig() error {
	if c.Flag.ConfigFile != "" {
		if err := c.readConfigFile(); err != nil {
			return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
		}
	}

	if c.Flag.Device != "" {
		c.Device = c.Flag.Device
	}
	if c.Flag.Baud != 0 {
		c.Baud = c.Flag.Baud
	}
	if c.Flag.LogLevel != "" {
		c.Debug.FlagString = c.Flag.LogLevel
	}

	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}
	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	return decoder.Decode(c)
}

func (c *Config) setDebugConfig() (err error) {
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
