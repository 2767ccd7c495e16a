package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"` // только REST, не /ws
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type GRPC struct {
	Addr           string        `yaml:"addr"` // пусто: gRPC выключен
	DefaultTimeout time.Duration `yaml:"defaultTimeout"`
}

type Logging struct {
	Env       string `yaml:"env"`     // dev|stage|prod
	Service   string `yaml:"service"` // tripchat
	Version   string `yaml:"version"`
	Backend   string `yaml:"backend"` // std|zap
	Level     string `yaml:"level"`   // debug|info|warn|error
	AddSource bool   `yaml:"addSource"`
	Debug     bool   `yaml:"debug"`
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Storage struct {
	Driver   string   `yaml:"driver"` // postgres|sqlite
	Postgres Postgres `yaml:"postgres"`
	SQLite   SQLite   `yaml:"sqlite"`
}

func (s *Storage) validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case "":
		s.Driver = DriverSQLite
		fallthrough
	case DriverSQLite:
		if s.SQLite.Path == "" {
			s.SQLite.Path = "tripchat.db"
		}
	case DriverPostgres:
		if s.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
		if s.Postgres.ApplicationName == "" {
			s.Postgres.ApplicationName = "tripchat"
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", s.Driver)
	}
	return nil
}

type Redis struct {
	Addr     string        `yaml:"addr"` // пусто: кэш истории выключен
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

const (
	AuthHeader = "header"
	AuthJWT    = "jwt"
)

type Auth struct {
	Mode      string        `yaml:"mode"` // header|jwt
	JWTSecret string        `yaml:"jwtSecret"`
	Issuer    string        `yaml:"issuer"`
	ClockSkew time.Duration `yaml:"clockSkew"`
}

func (a *Auth) validate() error {
	switch a.Mode {
	case "":
		a.Mode = AuthHeader
	case AuthHeader:
	case AuthJWT:
		if a.JWTSecret == "" {
			return errors.New("auth.jwtSecret is required in jwt mode")
		}
		if a.ClockSkew < 0 || a.ClockSkew > time.Minute {
			return errors.New("auth.clockSkew must be in [0..1m]")
		}
	default:
		return fmt.Errorf("auth.mode %q is not supported", a.Mode)
	}
	return nil
}

type WS struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	WriteWait      time.Duration `yaml:"writeWait"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	SendBuffer     int           `yaml:"sendBuffer"`
}

type Chat struct {
	HistoryMaxLimit  int     `yaml:"historyMaxLimit"`
	MaxMessageLength int     `yaml:"maxMessageLength"` // 0: без ограничения
	RateLimit        float64 `yaml:"rateLimit"`        // сообщений в секунду на пользователя, 0: выключено
	RateBurst        int     `yaml:"rateBurst"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	Logging Logging `yaml:"logging"`
	Storage Storage `yaml:"storage"`
	Redis   Redis   `yaml:"redis"`
	Auth    Auth    `yaml:"auth"`
	WS      WS      `yaml:"ws"`
	Chat    Chat    `yaml:"chat"`
	CORS    CORS    `yaml:"cors"`
}

// LoadConfig читает YAML из CONFIG_PATH (по умолчанию ./config/config.yaml).
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	if c.Chat.HistoryMaxLimit < 0 || c.Chat.MaxMessageLength < 0 || c.Chat.RateLimit < 0 {
		return errors.New("chat limits must not be negative")
	}

	// установка дефолтов, если значения не указаны
	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 30*time.Second)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)
	c.GRPC.DefaultTimeout = durationOr(c.GRPC.DefaultTimeout, 5*time.Second)

	if c.Logging.Service == "" {
		c.Logging.Service = "tripchat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "tripchat:history"
	}
	c.Redis.TTL = durationOr(c.Redis.TTL, 10*time.Minute)

	c.WS.PingInterval = durationOr(c.WS.PingInterval, 30*time.Second)
	c.WS.WriteWait = durationOr(c.WS.WriteWait, 10*time.Second)
	if c.WS.MaxMessageSize <= 0 {
		c.WS.MaxMessageSize = 64 << 10
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}

	if c.Chat.HistoryMaxLimit == 0 {
		c.Chat.HistoryMaxLimit = 100
	}
	if c.Chat.RateLimit > 0 && c.Chat.RateBurst <= 0 {
		c.Chat.RateBurst = 1
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	return nil
}

func durationOr(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
