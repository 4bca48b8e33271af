package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the lazercore daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. Flags only override a handful of fields.
type Config struct {
	Input    InputConfig     `yaml:"input"`
	Output   OutputConfig    `yaml:"output"`
	LEDs     LEDConfig       `yaml:"leds"`
	Socd     SocdConfig      `yaml:"socd"`
	Alchemy  AlchemyConfig   `yaml:"alchemy"`
	Keymap   KeymapOverrides `yaml:"keymap"`
	Deferred DeferredConfig  `yaml:"deferred"`
	Store    StoreConfig     `yaml:"store"`
	IPC      IPCConfig       `yaml:"ipc"`
	HTTP     HTTPConfig      `yaml:"http"`
	Logging  LoggingConfig   `yaml:"logging"`

	// TickHz drives LED refresh, feedback expiry and deferred commits.
	TickHz int `yaml:"tick_hz"`
}

type InputConfig struct {
	// Devices to read keys from. Empty means auto-detect keyboards.
	Devices []string `yaml:"devices,omitempty"`
	// EncoderDevices only contribute rotary input.
	EncoderDevices []string `yaml:"encoder_devices,omitempty"`
	// Grab takes exclusive access so only the virtual keyboard reaches the host.
	Grab bool `yaml:"grab"`
}

type OutputConfig struct {
	Name string `yaml:"name"`
}

type LEDConfig struct {
	// WsURL of the RGB controller. Empty disables the LED link.
	WsURL  string    `yaml:"ws_url"`
	Layout LEDLayout `yaml:"layout"`
}

type SocdConfig struct {
	// Vertical and Horizontal are [negative, positive] key names.
	Vertical   [2]string `yaml:"vertical"`
	Horizontal [2]string `yaml:"horizontal"`
	Mode       string    `yaml:"mode"`
}

type AlchemyConfig struct {
	// ReplaceDefaults drops the built-in table and uses Mappings only.
	ReplaceDefaults bool             `yaml:"replace_defaults"`
	Mappings        []AlchemyMapping `yaml:"mappings,omitempty"`
}

type DeferredConfig struct {
	DelayMS           int      `yaml:"delay_ms"`
	BootloaderCommand []string `yaml:"bootloader_command,omitempty"`
	NKROCommand       []string `yaml:"nkro_command,omitempty"`
}

type StoreConfig struct {
	// Backend is "file" or "redis".
	Backend string           `yaml:"backend"`
	Path    string           `yaml:"path"`
	Redis   RedisStoreConfig `yaml:"redis"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	// Listen address; empty disables the HTTP server.
	Listen string `yaml:"listen"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Grab: true,
		},
		Output: OutputConfig{
			Name: "lazercore virtual keyboard",
		},
		LEDs: LEDConfig{
			Layout: DefaultLEDLayout(),
		},
		Socd: SocdConfig{
			Vertical:   [2]string{"KEY_W", "KEY_S"},
			Horizontal: [2]string{"KEY_A", "KEY_D"},
			Mode:       SocdLastWins.String(),
		},
		Deferred: DeferredConfig{
			DelayMS: int(defaultDeferredDelay / time.Millisecond),
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "~/.local/state/lazercore/settings.bin",
			Redis: RedisStoreConfig{
				Addr: "127.0.0.1:6379",
				Key:  defaultRedisKey,
			},
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		HTTP: HTTPConfig{
			Listen: defaultHTTPListen,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		TickHz: defaultTickHz,
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
// Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
	case err != nil:
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	default:
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document at line %d", extra.Line)
	}

	return cfg, nil
}

// FlagOverrides holds flag values to apply on top of a loaded config. Each
// override is only applied when its pointer is non-nil.
type FlagOverrides struct {
	InputDevice   *string
	Grab          *bool
	LEDWsURL      *string
	SocdMode      *string
	StorePath     *string
	IPCSocketPath *string
	HTTPListen    *string
	TickHz        *int
	LogLevel      *string
}

func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}
	if o.Grab != nil {
		cfg.Input.Grab = *o.Grab
	}
	if o.LEDWsURL != nil {
		cfg.LEDs.WsURL = *o.LEDWsURL
	}
	if o.SocdMode != nil {
		cfg.Socd.Mode = *o.SocdMode
	}
	if o.StorePath != nil {
		cfg.Store.Backend = "file"
		cfg.Store.Path = *o.StorePath
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.TickHz != nil {
		cfg.TickHz = *o.TickHz
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Output.Name == "" {
		return errors.New("output.name must not be empty")
	}

	if err := c.LEDs.Layout.Validate(); err != nil {
		return err
	}

	if _, err := ParseSocdMode(c.Socd.Mode); err != nil {
		return fmt.Errorf("socd.mode: %w", err)
	}
	if _, _, err := c.socdAxes(SocdLastWins); err != nil {
		return err
	}

	if _, err := c.buildAlchemy(); err != nil {
		return err
	}
	if _, err := c.Keymap.Build(); err != nil {
		return fmt.Errorf("keymap: %w", err)
	}

	if c.Deferred.DelayMS <= 0 {
		return errors.New("deferred.delay_ms must be > 0")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			return errors.New("store.path must not be empty for the file backend")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr must not be empty for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be \"file\" or \"redis\", got %q", c.Store.Backend)
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.TickHz <= 0 || c.TickHz > 1000 {
		return errors.New("tick_hz must be between 1 and 1000")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) socdAxes(mode SocdMode) (SocdAxis, SocdAxis, error) {
	build := func(name string, keys [2]string) (SocdAxis, error) {
		neg, err := ParseKeyCode(keys[0])
		if err != nil {
			return SocdAxis{}, fmt.Errorf("socd.%s[0]: %w", name, err)
		}
		pos, err := ParseKeyCode(keys[1])
		if err != nil {
			return SocdAxis{}, fmt.Errorf("socd.%s[1]: %w", name, err)
		}
		if neg == pos {
			return SocdAxis{}, fmt.Errorf("socd.%s: both keys are %s", name, keys[0])
		}
		return NewSocdAxis(name, neg, pos, mode), nil
	}
	v, err := build("vertical", c.Socd.Vertical)
	if err != nil {
		return SocdAxis{}, SocdAxis{}, err
	}
	h, err := build("horizontal", c.Socd.Horizontal)
	if err != nil {
		return SocdAxis{}, SocdAxis{}, err
	}
	for _, k := range v.Keys {
		if k == h.Keys[0] || k == h.Keys[1] {
			return SocdAxis{}, SocdAxis{}, fmt.Errorf("socd: %s is on both axes", keyName(k))
		}
	}
	return v, h, nil
}

func (c *Config) buildAlchemy() (*Alchemy, error) {
	var mappings []AlchemyMapping
	if !c.Alchemy.ReplaceDefaults {
		mappings = DefaultAlchemyMappings()
	}
	mappings = append(mappings, c.Alchemy.Mappings...)
	a, err := NewAlchemy(mappings)
	if err != nil {
		return nil, fmt.Errorf("alchemy.mappings: %w", err)
	}
	return a, nil
}

// ReducerConfig converts the file config into what the reducer consults.
func (c *Config) ReducerConfig() (ReducerConfig, error) {
	km, err := c.Keymap.Build()
	if err != nil {
		return ReducerConfig{}, fmt.Errorf("keymap: %w", err)
	}
	mode, err := ParseSocdMode(c.Socd.Mode)
	if err != nil {
		return ReducerConfig{}, fmt.Errorf("socd.mode: %w", err)
	}
	return ReducerConfig{
		Keymap:        km,
		LEDs:          c.LEDs.Layout,
		DeferredDelay: time.Duration(c.Deferred.DelayMS) * time.Millisecond,
		Defaults:      DefaultSettings(),
		SocdMode:      mode,
	}, nil
}

// NewState builds the initial DaemonState from the config.
func (c *Config) NewState() (*DaemonState, error) {
	mode, err := ParseSocdMode(c.Socd.Mode)
	if err != nil {
		return nil, fmt.Errorf("socd.mode: %w", err)
	}
	v, h, err := c.socdAxes(mode)
	if err != nil {
		return nil, err
	}
	a, err := c.buildAlchemy()
	if err != nil {
		return nil, err
	}
	return NewDaemonState(v, h, a), nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
