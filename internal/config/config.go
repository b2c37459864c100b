package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the orozarna configuration file.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Warnings    WarningsConfig    `toml:"warnings"`
	Attestation AttestationConfig `toml:"attestation"`
	Serial      SerialConfig      `toml:"serial"`
	Tracing     TracingConfig     `toml:"tracing"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	LogPath string `toml:"log_path,omitempty"` // empty logs to stdout/stderr only

	// TrustedProxies lists addresses or CIDR ranges of reverse proxies whose
	// X-Forwarded-For header is believed. Empty trusts no one.
	TrustedProxies []string `toml:"trusted_proxies,omitempty"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// WarningsConfig holds warning thresholds. Zero disables the extended custody
// and maintenance warnings.
type WarningsConfig struct {
	OverdueGraceDays        int    `toml:"overdue_grace_days"`
	ExtendedCustodyDays     int    `toml:"extended_custody_days"`
	MaintenanceIntervalDays int    `toml:"maintenance_interval_days"`
	Timezone                string `toml:"timezone"`
}

// AttestationConfig is the legal text shown to off-site requesters.
type AttestationConfig struct {
	Text    string `toml:"text,omitempty"` // empty uses the built-in text
	Version string `toml:"version"`
}

// SerialConfig locates the age identity used to seal serial numbers.
type SerialConfig struct {
	IdentityPath string `toml:"identity_path,omitempty"`
}

// TracingConfig configures the OTLP/HTTP trace exporter. Tracing is off when
// Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `toml:"endpoint,omitempty"`
	ServiceName string `toml:"service_name"`
	Insecure    bool   `toml:"insecure"`
}

// Default returns a complete configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "orozarna.db"},
		Warnings: WarningsConfig{
			OverdueGraceDays:        0,
			ExtendedCustodyDays:     7,
			MaintenanceIntervalDays: 90,
			Timezone:                "UTC",
		},
		Attestation: AttestationConfig{Version: "1"},
		Tracing:     TracingConfig{ServiceName: "orozarna"},
	}
}

// Validate checks thresholds and the time zone.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Warnings.OverdueGraceDays < 0 {
		errs = append(errs, errors.New("warnings.overdue_grace_days must not be negative"))
	}
	if c.Warnings.ExtendedCustodyDays < 0 {
		errs = append(errs, errors.New("warnings.extended_custody_days must not be negative"))
	}
	if c.Warnings.MaintenanceIntervalDays < 0 {
		errs = append(errs, errors.New("warnings.maintenance_interval_days must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.TrustedProxies(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TrustedProxies parses server.trusted_proxies. A bare address is a single-host range.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range c.Server.TrustedProxies {
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %q is not an address or CIDR range", s)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Location resolves the warnings time zone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Warnings.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Warnings.Timezone)
	if err != nil {
		return nil, fmt.Errorf("warnings.timezone: %w", err)
	}
	return loc, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r on top of the defaults, so omitted keys keep
// their default values.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Write encodes a Config to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path. A missing file yields the defaults.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new file at path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
