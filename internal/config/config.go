package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Duration lets TOML files use "1s", "100ms" and so on.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type HTTPConfig struct {
	// Addr of the status endpoint; empty disables it.
	Addr string `toml:"addr"`
}

type EtcdConfig struct {
	Endpoints   []string `toml:"endpoints"`
	Prefix      string   `toml:"prefix"`
	TTL         int64    `toml:"ttl"`
	DialTimeout Duration `toml:"dial_timeout"`
}

// Config holds the prober configuration.
type Config struct {
	// Name is the local identity; empty means the OS hostname.
	Name     string `toml:"name"`
	Hostfile string `toml:"hostfile"`
	Port     int    `toml:"port"`

	ReceiveTimeout Duration `toml:"receive_timeout"`
	RoundInterval  Duration `toml:"round_interval"`
	StartupDelay   Duration `toml:"startup_delay"`
	ExitOnReady    bool     `toml:"exit_on_ready"`

	Log  LogConfig  `toml:"log"`
	HTTP HTTPConfig `toml:"http"`
	Etcd EtcdConfig `toml:"etcd"`
}

func Default() Config {
	return Config{
		Port:           8888,
		ReceiveTimeout: Duration{time.Second},
		RoundInterval:  Duration{100 * time.Millisecond},
		Log:            LogConfig{Level: "info"},
		Etcd: EtcdConfig{
			Prefix:      "/peerprobe/nodes/",
			TTL:         10,
			DialTimeout: Duration{5 * time.Second},
		},
	}
}

// Load reads a TOML file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, 0, len(undec))
		for _, k := range undec {
			keys = append(keys, k.String())
		}
		return Config{}, errors.Errorf("load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ResolveName fills Name from the OS hostname when it is unset.
func (c *Config) ResolveName() error {
	if c.Name != "" {
		return nil
	}
	h, err := os.Hostname()
	if err != nil {
		return errors.Wrap(err, "lookup own hostname")
	}
	c.Name = h
	return nil
}

func (c *Config) Validate() error {
	if c.Hostfile == "" && len(c.Etcd.Endpoints) == 0 {
		return errors.New("missing hostsfile path (-h) and no etcd endpoints")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.ReceiveTimeout.Duration <= 0 {
		return errors.Errorf("receive timeout must be positive, got %s", c.ReceiveTimeout)
	}
	if c.RoundInterval.Duration < 0 {
		return errors.Errorf("round interval must not be negative, got %s", c.RoundInterval)
	}
	if c.StartupDelay.Duration < 0 {
		return errors.Errorf("startup delay must not be negative, got %s", c.StartupDelay)
	}
	if strings.Contains(c.Name, ":") {
		return errors.Errorf("name %q must not contain ':'", c.Name)
	}
	if len(c.Etcd.Endpoints) > 0 {
		if c.Etcd.TTL <= 0 {
			return errors.Errorf("etcd ttl must be positive, got %d", c.Etcd.TTL)
		}
		if !strings.HasSuffix(c.Etcd.Prefix, "/") {
			return errors.Errorf("etcd prefix %q must end with '/'", c.Etcd.Prefix)
		}
	}
	return nil
}

// ParseEndpoints splits a comma-separated endpoint list, dropping blanks.
func ParseEndpoints(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
