package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matt0x6f/irc-engine/internal/charset"
	"github.com/matt0x6f/irc-engine/internal/constants"
	"github.com/matt0x6f/irc-engine/internal/irc"
	"github.com/matt0x6f/irc-engine/internal/logger"
	"github.com/matt0x6f/irc-engine/internal/security"
	"github.com/matt0x6f/irc-engine/internal/validation"
	"gopkg.in/yaml.v3"
)

// Config holds everything needed to run one connection
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Identity    IdentityConfig `yaml:"identity"`
	SASL        *SASLConfig    `yaml:"sasl"`
	Charset     string         `yaml:"charset"`
	QuitMessage string         `yaml:"quit_message"`
	Rooms       []RoomConfig   `yaml:"rooms"`
	Flood       FloodConfig    `yaml:"flood"`
	Storage     StorageConfig  `yaml:"storage"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Log         LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	TLS                bool   `yaml:"tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	WebSocketURL       string `yaml:"websocket_url"`
	// ClientCert and ClientKey are PEM files presented during the TLS
	// handshake, as used by SASL EXTERNAL
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

type IdentityConfig struct {
	Nickname string `yaml:"nickname"`
	Username string `yaml:"username"`
	Realname string `yaml:"realname"`
	Password string `yaml:"password"`
	// Keyring reads Password from the OS keychain when it is empty
	Keyring bool `yaml:"keyring"`
}

type SASLConfig struct {
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Keyring   bool   `yaml:"keyring"`
}

type RoomConfig struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

type FloodConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

// StorageConfig enables the message log when Path is set
type StorageConfig struct {
	Path          string        `yaml:"path"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig serves Prometheus metrics when Listen is set
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, fills defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		if c.Server.TLS {
			c.Server.Port = 6697
		} else {
			c.Server.Port = 6667
		}
	}
	if c.Identity.Username == "" {
		c.Identity.Username = c.Identity.Nickname
	}
	if c.QuitMessage == "" {
		c.QuitMessage = constants.DefaultQuitMessage
	}
	if c.Flood.Interval == 0 {
		c.Flood.Interval = constants.FloodInterval
	}
	if c.Flood.Burst == 0 {
		c.Flood.Burst = constants.FloodBurst
	}
	if c.Storage.BufferSize == 0 {
		c.Storage.BufferSize = 100
	}
	if c.Storage.FlushInterval == 0 {
		c.Storage.FlushInterval = time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.SASL != nil {
		c.SASL.Mechanism = strings.ToUpper(c.SASL.Mechanism)
		if c.SASL.Mechanism == "" {
			c.SASL.Mechanism = "PLAIN"
		}
		if c.SASL.Username == "" {
			c.SASL.Username = c.Identity.Nickname
		}
	}
}

// Validate checks the configuration for values the engine would refuse
func (c *Config) Validate() error {
	if err := validation.ValidateConnectParams(c.Identity.Nickname, c.Server.Host, c.Server.Port); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Server.WebSocketURL != "" &&
		!strings.HasPrefix(c.Server.WebSocketURL, "ws://") && !strings.HasPrefix(c.Server.WebSocketURL, "wss://") {
		return fmt.Errorf("invalid config: websocket_url must use ws:// or wss://")
	}
	if _, err := charset.New(c.Charset); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Server.ClientCert == "") != (c.Server.ClientKey == "") {
		return fmt.Errorf("invalid config: client_cert and client_key must be set together")
	}
	if c.Server.ClientCert != "" && !c.Server.TLS && !strings.HasPrefix(c.Server.WebSocketURL, "wss://") {
		return fmt.Errorf("invalid config: client_cert needs tls or a wss:// websocket_url")
	}
	if c.SASL != nil {
		switch c.SASL.Mechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		case "EXTERNAL":
			if c.Server.ClientCert == "" {
				return fmt.Errorf("invalid config: SASL EXTERNAL needs client_cert and client_key")
			}
		default:
			return fmt.Errorf("invalid config: unsupported SASL mechanism %q", c.SASL.Mechanism)
		}
	}
	for _, room := range c.Rooms {
		if err := validation.ValidateChannelName(room.Name); err != nil {
			return fmt.Errorf("invalid config: room %q: %w", room.Name, err)
		}
	}
	if c.Flood.Interval < 0 || c.Flood.Burst < 0 {
		return fmt.Errorf("invalid config: flood interval and burst must not be negative")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ResolveSecrets fills passwords marked as keyring backed from k
func (c *Config) ResolveSecrets(k *security.Keychain) error {
	if c.Identity.Keyring {
		pw, err := k.Resolve(c.Identity.Password,
			security.Account("server", c.Identity.Nickname, c.Server.Host))
		if err != nil {
			return err
		}
		c.Identity.Password = pw
	}
	if c.SASL != nil && c.SASL.Keyring {
		pw, err := k.Resolve(c.SASL.Password,
			security.Account("sasl", c.SASL.Username, c.Server.Host))
		if err != nil {
			return err
		}
		c.SASL.Password = pw
	}
	return nil
}

// ConnectionParams converts the configuration into connection parameters,
// loading the client certificate if one is configured
func (c *Config) ConnectionParams() (irc.Params, error) {
	p := irc.Params{
		Nickname:           c.Identity.Nickname,
		Username:           c.Identity.Username,
		Realname:           c.Identity.Realname,
		Password:           c.Identity.Password,
		Server:             c.Server.Host,
		Port:               c.Server.Port,
		TLS:                c.Server.TLS,
		InsecureSkipVerify: c.Server.InsecureSkipVerify,
		WebSocketURL:       c.Server.WebSocketURL,
		Charset:            c.Charset,
		QuitMessage:        c.QuitMessage,
		FloodInterval:      c.Flood.Interval,
		FloodBurst:         c.Flood.Burst,
	}
	if c.SASL != nil {
		p.SASL = &irc.SASLParams{
			Mechanism: c.SASL.Mechanism,
			Username:  c.SASL.Username,
			Password:  c.SASL.Password,
		}
	}
	if c.Server.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(c.Server.ClientCert, c.Server.ClientKey)
		if err != nil {
			return p, fmt.Errorf("failed to load client certificate: %w", err)
		}
		p.ClientCertificate = &cert
	}
	return p, nil
}
