package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/YelzhanWeb/dispatch/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	HTTP     HTTPConfig     `yaml:"http"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DispatchConfig struct {
	PollInterval     time.Duration                          `yaml:"poll_interval"`
	AcceptTimeout    time.Duration                          `yaml:"accept_timeout"`
	StaleWindow      time.Duration                          `yaml:"stale_window"`
	OperationTimeout time.Duration                          `yaml:"operation_timeout"`
	Roles            map[domain.OrderType]domain.StaffRole `yaml:"roles"`
}

const (
	DriverPgxPool = "pgxpool"
	DriverStdlib  = "stdlib"
)

// Default returns a config usable against a local docker compose setup.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:   DriverPgxPool,
			Host:     "localhost",
			Port:     5432,
			User:     "restaurant_user",
			Password: "restaurant_pass",
			Database: "restaurant_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
		},
		HTTP: HTTPConfig{Port: 3000},
		Dispatch: DispatchConfig{
			PollInterval:     30 * time.Second,
			AcceptTimeout:    60 * time.Second,
			StaleWindow:      5 * time.Minute,
			OperationTimeout: 10 * time.Second,
			Roles:            domain.DefaultRoleMap(),
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default, then applies env overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	// roles from the file replace the defaults instead of merging into them
	cfg.Dispatch.Roles = nil

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if len(cfg.Dispatch.Roles) == 0 {
		cfg.Dispatch.Roles = domain.DefaultRoleMap()
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("DB_HOST", &cfg.Database.Host)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Database)
	str("RABBITMQ_HOST", &cfg.RabbitMQ.Host)
	str("RABBITMQ_USER", &cfg.RabbitMQ.User)
	str("RABBITMQ_PASSWORD", &cfg.RabbitMQ.Password)

	return errors.Join(
		num("DB_PORT", &cfg.Database.Port),
		num("RABBITMQ_PORT", &cfg.RabbitMQ.Port),
		dur("DISPATCH_POLL_INTERVAL", &cfg.Dispatch.PollInterval),
		dur("DISPATCH_ACCEPT_TIMEOUT", &cfg.Dispatch.AcceptTimeout),
		dur("DISPATCH_STALE_WINDOW", &cfg.Dispatch.StaleWindow),
	)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver != DriverPgxPool && c.Database.Driver != DriverStdlib {
		errs = append(errs, fmt.Errorf("database.driver must be %s or %s", DriverPgxPool, DriverStdlib))
	}
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.RabbitMQ.Host == "" {
		errs = append(errs, errors.New("rabbitmq.host is required"))
	}
	if c.Dispatch.PollInterval <= 0 {
		errs = append(errs, errors.New("dispatch.poll_interval must be positive"))
	}
	if c.Dispatch.AcceptTimeout <= 0 {
		errs = append(errs, errors.New("dispatch.accept_timeout must be positive"))
	}
	if c.Dispatch.StaleWindow <= 0 {
		errs = append(errs, errors.New("dispatch.stale_window must be positive"))
	}
	if c.Dispatch.OperationTimeout <= 0 {
		errs = append(errs, errors.New("dispatch.operation_timeout must be positive"))
	}
	for t, role := range c.Dispatch.Roles {
		if role != domain.RoleWaiter && role != domain.RoleDelivery {
			errs = append(errs, fmt.Errorf("dispatch.roles[%s]: unknown role %q", t, role))
		}
	}
	return errors.Join(errs...)
}
