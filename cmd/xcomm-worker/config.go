package main

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment.
type Config struct {
	HTTPAddr        string        `env:"XCOMM_HTTP_ADDR"        envDefault:":8080"`
	Store           string        `env:"XCOMM_STORE"            envDefault:"memory"`
	ShutdownTimeout time.Duration `env:"XCOMM_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"`
	PostgresDSN   string `env:"POSTGRES_DSN"`

	// Optional audit sinks.
	AuditStream  string   `env:"XCOMM_AUDIT_STREAM"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"   envDefault:"xcomm.events"`

	// ProviderURL receives outgoing messages; empty logs them instead.
	ProviderURL     string        `env:"XCOMM_PROVIDER_URL"`
	MaxRetries      int           `env:"XCOMM_MAX_RETRIES"      envDefault:"3"`
	InitialDelay    time.Duration `env:"XCOMM_INITIAL_DELAY"    envDefault:"1s"`
	DelayMultiplier float64       `env:"XCOMM_DELAY_MULTIPLIER" envDefault:"2"`
	AttemptTimeout  time.Duration `env:"XCOMM_ATTEMPT_TIMEOUT"  envDefault:"10s"`

	DispatchWorkers int           `env:"XCOMM_DISPATCH_WORKERS" envDefault:"4"`
	DispatchBuffer  int           `env:"XCOMM_DISPATCH_BUFFER"  envDefault:"1024"`
	CallbackTimeout time.Duration `env:"XCOMM_CALLBACK_TIMEOUT" envDefault:"10s"`

	LogDebug   bool `env:"LOG_DEBUG"`
	LogConsole bool `env:"LOG_CONSOLE"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
