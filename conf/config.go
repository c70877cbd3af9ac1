package conf

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var (
	Path string
	Port int

	global *Config
)

func G() *Config {
	if global == nil {
		panic("configuration not loaded")
	}

	return global
}

func ReplaceGlobals(cfg *Config) {
	global = cfg
}

func LoadEnv(cli *cli.Context) error {
	path := cli.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = homeDir + "/.analyst"
	}

	Path = path
	Port = cli.Int("port")
	return nil
}

func LoadConfig() (*Config, error) {
	f, err := os.Open(Path + "/config.yaml")
	if err != nil {
		f, err = os.Open(Path + "/config.example.yaml")
		if err != nil {
			return nil, err
		}
	}
	defer f.Close()

	r := NewEnvExpandedReader(f)

	var cfg *Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

type Config struct {
	Name        string      `yaml:"name"`
	BaseURL     string      `yaml:"baseUrl"`
	Server      Server      `yaml:"server"`
	Workspace   Workspace   `yaml:"workspace"`
	Gemini      Gemini      `yaml:"gemini"`
	Executor    Executor    `yaml:"executor"`
	Persistence Persistence `yaml:"persistence"`
	EventBus    EventBus    `yaml:"eventBus"`
	JWT         JWT         `yaml:"jwt"`
	RateLimit   RateLimit   `yaml:"rateLimit"`
	Registry    Registry    `yaml:"registry"`
	Sweeper     Sweeper     `yaml:"sweeper"`
}

// normalize fills the defaults that depend on the runtime environment
// or that a sparse config file leaves out entirely.
func (cfg *Config) normalize() {
	if cfg.Name == "" {
		cfg.Name = "analyst"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = filepath.Join(Path, "uploads")
	}

	if cfg.Workspace.Frontend == "" {
		cfg.Workspace.Frontend = filepath.Join(Path, "frontend.html")
	}

	if cfg.EventBus.Prefix == "" {
		cfg.EventBus.Prefix = "tasks"
	}
}

type Server struct {
	Host string `yaml:"host"`
}

type Workspace struct {
	Root     string `yaml:"root"`
	Frontend string `yaml:"frontend"`
}

type Gemini struct {
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	FixAttempts int
}

func (cfg *Gemini) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Model       string `yaml:"model"`
		BaseURL     string `yaml:"baseUrl"`
		APIKey      string `yaml:"apiKey"`
		Timeout     string `yaml:"timeout"`
		FixAttempts int    `yaml:"fixAttempts"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	cfg.Model = raw.Model
	if raw.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	cfg.BaseURL = raw.BaseURL
	if raw.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}

	cfg.APIKey = raw.APIKey

	if raw.Timeout == "" {
		cfg.Timeout = 120 * time.Second
	} else {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}

		cfg.Timeout = timeout
	}

	cfg.FixAttempts = raw.FixAttempts
	if raw.FixAttempts <= 0 {
		cfg.FixAttempts = 3
	}

	return nil
}

type Executor struct {
	Python         string
	PipInstall     bool
	Timeout        time.Duration
	MaxOutputBytes int
}

func (cfg *Executor) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Python         string `yaml:"python"`
		PipInstall     *bool  `yaml:"pipInstall"`
		Timeout        string `yaml:"timeout"`
		MaxOutputBytes int    `yaml:"maxOutputBytes"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	cfg.Python = raw.Python
	if raw.Python == "" {
		cfg.Python = "python3"
	}

	cfg.PipInstall = raw.PipInstall == nil || *raw.PipInstall

	if raw.Timeout == "" {
		cfg.Timeout = 3 * time.Minute
	} else {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}

		cfg.Timeout = timeout
	}

	cfg.MaxOutputBytes = raw.MaxOutputBytes
	if raw.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 * 1024
	}

	return nil
}

type PersistenceDriver int

const (
	SQLite PersistenceDriver = iota
	BadgerDB
	Redis
	InMem
)

func ParsePersistenceDriver(driver string) (PersistenceDriver, error) {
	switch driver {
	case "sqlite":
		return SQLite, nil
	case "badger":
		return BadgerDB, nil
	case "redis":
		return Redis, nil
	case "inmem":
		return InMem, nil
	default:
		return -1, errors.New("driver not supported")
	}
}

func (driver PersistenceDriver) String() string {
	switch driver {
	case SQLite:
		return "sqlite"
	case BadgerDB:
		return "badger"
	case Redis:
		return "redis"
	case InMem:
		return "inmem"
	default:
		return "unknown"
	}
}

type Persistence struct {
	Driver   PersistenceDriver
	Name     string
	Host     string
	Port     int
	Username string
	Password string
	InMem    bool
}

func (p *Persistence) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Driver   string `yaml:"driver"`
		Name     string `yaml:"name"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		InMem    bool   `yaml:"inmem"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	driver, err := ParsePersistenceDriver(raw.Driver)
	if err != nil {
		return err
	}

	p.Driver = driver

	p.Name = raw.Name
	if raw.Name == "" {
		p.Name = "analyst"
	}

	p.Host = raw.Host
	if raw.Host == "" {
		p.Host = Path
	}

	p.Port = raw.Port
	p.Username = raw.Username
	p.Password = raw.Password
	p.InMem = raw.InMem

	return nil
}

type TransportProvider int

const NATS TransportProvider = iota

func ParseTransportProvider(provider string) (TransportProvider, error) {
	switch provider {
	case "nats":
		return NATS, nil
	default:
		return -1, errors.New("provider not supported")
	}
}

func (p TransportProvider) String() string {
	switch p {
	case NATS:
		return "nats"
	default:
		return ""
	}
}

type EventBus struct {
	Provider TransportProvider
	URL      string
	Prefix   string
}

func (e *EventBus) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Provider string `yaml:"provider"`
		URL      string `yaml:"url"`
		Prefix   string `yaml:"prefix"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	provider, err := ParseTransportProvider(raw.Provider)
	if err != nil {
		return err
	}

	e.Provider = provider
	e.URL = raw.URL
	e.Prefix = raw.Prefix

	return nil
}

type JWT struct {
	Privkey   ed25519.PrivateKey
	Timeout   time.Duration
	Audiences []string
}

func (cfg *JWT) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Privkey   string
		Timeout   string
		Audiences []string
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Privkey != "" {
		priv, err := base64.StdEncoding.DecodeString(raw.Privkey)
		if err != nil {
			return err
		}

		if len(priv) != ed25519.PrivateKeySize {
			return errors.New("invalid ed25519 private key length")
		}

		cfg.Privkey = ed25519.PrivateKey(priv)
	}

	if raw.Timeout == "" {
		cfg.Timeout = 1 * time.Hour
	} else {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}

		cfg.Timeout = timeout
	}

	cfg.Audiences = raw.Audiences

	return nil
}

// Enabled reports whether the admin API requires signed tokens.
func (cfg *JWT) Enabled() bool {
	return len(cfg.Privkey) > 0
}

type RateLimit struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type Registry struct {
	Consul Consul `yaml:"consul"`
}

type Consul struct {
	Address string `yaml:"address"`
	Scheme  string `yaml:"scheme"`
	Token   string `yaml:"token"`
}

type Sweeper struct {
	Schedule string
	TTL      time.Duration
}

func (cfg *Sweeper) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Schedule string `yaml:"schedule"`
		TTL      string `yaml:"ttl"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	cfg.Schedule = raw.Schedule
	if raw.Schedule == "" {
		cfg.Schedule = "@hourly"
	}

	if raw.TTL == "" {
		cfg.TTL = 24 * time.Hour
	} else {
		ttl, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return err
		}

		cfg.TTL = ttl
	}

	return nil
}
