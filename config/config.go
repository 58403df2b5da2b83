// Package config loads the service configuration from an optional YAML file,
// an optional .env file and PIDISPLAY_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AndreRenaud/pidisplay/epd"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "PIDISPLAY"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Display DisplayConfig `mapstructure:"display"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Addr               string   `mapstructure:"addr"`
	ReadTimeoutSec     int      `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec    int      `mapstructure:"write_timeout_sec"`
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`
	CORSOrigins        []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSec) * time.Second
}

type DisplayConfig struct {
	Type      string     `mapstructure:"type"`
	Transport string     `mapstructure:"transport"`
	SPIBus    string     `mapstructure:"spi_bus"`
	Pins      PinsConfig `mapstructure:"pins"`
	Rotate    int        `mapstructure:"rotate"`
	Width     int        `mapstructure:"width"`
	Height    int        `mapstructure:"height"`
	Snapshot  string     `mapstructure:"snapshot"`
}

type PinsConfig struct {
	DC   string `mapstructure:"dc"`
	CS   string `mapstructure:"cs"`
	RST  string `mapstructure:"rst"`
	Busy string `mapstructure:"busy"`
}

// EPDOptions maps the display section onto epd.Open.
func (d DisplayConfig) EPDOptions() epd.Options {
	return epd.Options{
		Type:      d.Type,
		Transport: d.Transport,
		Bus:       d.SPIBus,
		Pins: epd.Pins{
			DC:   d.Pins.DC,
			CS:   d.Pins.CS,
			RST:  d.Pins.RST,
			Busy: d.Pins.Busy,
		},
		Width:    d.Width,
		Height:   d.Height,
		Snapshot: d.Snapshot,
	}
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Waveshare e-Paper HAT wiring on the Raspberry Pi header, and the FT232H
// wiring used with a USB bridge.
var (
	piPins   = PinsConfig{DC: "GPIO25", CS: "GPIO8", RST: "GPIO17", Busy: "GPIO24"}
	ftdiPins = PinsConfig{DC: "FT232H.C0", CS: "FT232H.C1", RST: "FT232H.C2", Busy: "FT232H.C3"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout_sec", 30)
	v.SetDefault("server.write_timeout_sec", 60)
	v.SetDefault("server.shutdown_timeout_sec", 10)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("display.type", "154_v2")
	v.SetDefault("display.transport", epd.TransportSPI)
	v.SetDefault("display.spi_bus", "")
	v.SetDefault("display.pins.dc", "")
	v.SetDefault("display.pins.cs", "")
	v.SetDefault("display.pins.rst", "")
	v.SetDefault("display.pins.busy", "")
	v.SetDefault("display.rotate", 0)
	v.SetDefault("display.width", 200)
	v.SetDefault("display.height", 200)
	v.SetDefault("display.snapshot", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads path (if non-empty) and the environment. An empty path looks
// for config.yaml in the working directory and /etc/pidisplay; finding none
// is not an error.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pidisplay")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.fillPins()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// fillPins applies the default wiring for the transport to unset pins.
func (c *Config) fillPins() {
	def := piPins
	if c.Display.Transport == epd.TransportFTDI {
		def = ftdiPins
	}
	p := &c.Display.Pins
	if p.DC == "" {
		p.DC = def.DC
	}
	if p.CS == "" {
		p.CS = def.CS
	}
	if p.RST == "" {
		p.RST = def.RST
	}
	if p.Busy == "" {
		p.Busy = def.Busy
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if cfg.Server.ReadTimeoutSec <= 0 {
		return fmt.Errorf("server.read_timeout_sec must be positive")
	}
	if cfg.Server.WriteTimeoutSec <= 0 {
		return fmt.Errorf("server.write_timeout_sec must be positive")
	}
	if cfg.Server.ShutdownTimeoutSec <= 0 {
		return fmt.Errorf("server.shutdown_timeout_sec must be positive")
	}

	d := cfg.Display
	switch d.Type {
	case epd.Virtual:
		if d.Width <= 0 || d.Height <= 0 {
			return fmt.Errorf("display.width and display.height must be positive for the virtual panel")
		}
	default:
		if !contains(epd.SupportedTypes(), d.Type) {
			return fmt.Errorf("display.type must be one of %v or %q, got %q", epd.SupportedTypes(), epd.Virtual, d.Type)
		}
		if d.Transport != epd.TransportSPI && d.Transport != epd.TransportFTDI {
			return fmt.Errorf("display.transport must be %q or %q", epd.TransportSPI, epd.TransportFTDI)
		}
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
