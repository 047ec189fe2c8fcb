package config

import (
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"database"`
}

func (d Database) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RabbitMQ struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

func (m RabbitMQ) URL() string {
	vhost := m.VHost
	if vhost == "" {
		vhost = "/"
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", m.User, m.Password, m.Host, m.Port, vhost)
}

type Server struct {
	Port             int `yaml:"port"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

type Coordinator struct {
	ReconcileSeconds int `yaml:"reconcile_seconds"`
}

type Notifications struct {
	// Channels maps a staff role to its routing key on the pages
	// exchange. Roles without an entry fall back to the shared channel.
	Channels map[string]string `yaml:"channels"`
}

type Config struct {
	Database      Database      `yaml:"database"`
	RabbitMQ      RabbitMQ      `yaml:"rabbitmq"`
	Server        Server        `yaml:"server"`
	Coordinator   Coordinator   `yaml:"coordinator"`
	Notifications Notifications `yaml:"notifications"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	// Secrets may be supplied through the environment instead of the file.
	if v := os.Getenv("VENUE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("VENUE_MQ_PASSWORD"); v != "" {
		cfg.RabbitMQ.Password = v
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.HeartbeatSeconds == 0 {
		cfg.Server.HeartbeatSeconds = 30
	}
	if cfg.Coordinator.ReconcileSeconds == 0 {
		cfg.Coordinator.ReconcileSeconds = 60
	}

	if cfg.Database.Host == "" {
		return Config{}, fmt.Errorf("invalid config: missing database host")
	}
	return cfg, nil
}

// Find probes the conventional config locations.
func Find() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
