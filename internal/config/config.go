package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rmed/simpleice/internal/provider"
)

// SecretEnv is the environment variable consulted for the SMTP secret when
// the config file leaves it empty.
const SecretEnv = "SIMPLEICE_MAIL_SECRET"

// ErrExists is returned by Write when the target file already exists.
var ErrExists = errors.New("config file already exists")

// Config holds all simpleice configuration.
type Config struct {
	Store  StoreConfig  `toml:"store"`
	Mail   MailConfig   `toml:"mail"`
	Daemon DaemonConfig `toml:"daemon"`
	Log    LogConfig    `toml:"log"`
}

// StoreConfig locates the ICE mail file and the delivery journal.
type StoreConfig struct {
	Path    string `toml:"path"`
	Journal string `toml:"journal"`
}

// MailConfig holds the SMTP account used for delivery.
type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Secret   string `toml:"secret"`
	From     string `toml:"from"`
	Security string `toml:"security"`
	Timeout  string `toml:"timeout"`
}

// DaemonConfig holds check loop settings.
type DaemonConfig struct {
	Interval string `toml:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Path:    filepath.Join(DataDir(), "icemails.json"),
			Journal: filepath.Join(DataDir(), "journal.db"),
		},
		Mail: MailConfig{
			Port:     587,
			Security: string(provider.SecurityStartTLS),
			Timeout:  "30s",
		},
		Daemon: DaemonConfig{
			Interval: "1h",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads config from path. If path is empty or the file does not exist,
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Store.Path = ExpandHome(cfg.Store.Path)
	cfg.Store.Journal = ExpandHome(cfg.Store.Journal)
	return &cfg, nil
}

// Write stores cfg at path as TOML, creating parent directories. It refuses
// to replace an existing file.
func Write(path string, cfg Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}

// Interval returns the daemon check interval.
func (c *Config) Interval() (time.Duration, error) {
	d, err := parseDuration("daemon.interval", c.Daemon.Interval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("daemon.interval must be positive, got %s", c.Daemon.Interval)
	}
	return d, nil
}

// SendTimeout returns the per-delivery timeout.
func (m *MailConfig) SendTimeout() (time.Duration, error) {
	d, err := parseDuration("mail.timeout", m.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("mail.timeout must be positive, got %s", m.Timeout)
	}
	return d, nil
}

// Validate reports settings that would make delivery impossible.
func (m *MailConfig) Validate() error {
	var missing []string
	if m.Host == "" {
		missing = append(missing, "mail.host")
	}
	if m.Port <= 0 || m.Port > 65535 {
		missing = append(missing, "mail.port")
	}
	if m.From == "" && m.Username == "" {
		missing = append(missing, "mail.from")
	}
	if len(missing) > 0 {
		return fmt.Errorf("incomplete mail configuration: %s", strings.Join(missing, ", "))
	}
	switch provider.Security(m.Security) {
	case provider.SecurityStartTLS, provider.SecurityTLS, provider.SecurityNone:
	default:
		return fmt.Errorf("unknown mail.security %q (want starttls, tls or none)", m.Security)
	}
	if _, err := m.SendTimeout(); err != nil {
		return err
	}
	return nil
}

// Account converts the mail settings into a provider.Account. The secret is
// resolved separately.
func (m *MailConfig) Account(secret string) provider.Account {
	return provider.Account{
		Host:     m.Host,
		Port:     m.Port,
		Username: m.Username,
		Secret:   secret,
		From:     m.From,
		Security: provider.Security(m.Security),
	}
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ConfigDir returns the simpleice config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "simpleice")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "simpleice")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the simpleice data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "simpleice")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "simpleice")
}
