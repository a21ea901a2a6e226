package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultDeliveryTimeout    = 10 * time.Second
	DefaultRetryDelay         = 10 * time.Minute
	DefaultMaxTry             = 6
	DefaultUserAgent          = "go-ipn"
	DefaultWorkerPollInterval = time.Second
	DefaultWorkerConcurrency  = 4
	DefaultWorkerLease        = time.Minute
)

type DeliveryConfig struct {
	Timeout    time.Duration `koanf:"timeout" mapstructure:"timeout"`
	RetryDelay time.Duration `koanf:"retry_delay" mapstructure:"retry_delay"`
	MaxTry     int           `koanf:"max_try" mapstructure:"max_try"`
	UserAgent  string        `koanf:"user_agent" mapstructure:"user_agent"`
}

type WorkerConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	Concurrency  int           `koanf:"concurrency" mapstructure:"concurrency"`
	Lease        time.Duration `koanf:"lease" mapstructure:"lease"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Delivery    DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
	Worker      WorkerConfig   `koanf:"worker" mapstructure:"worker"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "ipn",
		Delivery: DeliveryConfig{
			Timeout:    DefaultDeliveryTimeout,
			RetryDelay: DefaultRetryDelay,
			MaxTry:     DefaultMaxTry,
			UserAgent:  DefaultUserAgent,
		},
		Worker: WorkerConfig{
			PollInterval: DefaultWorkerPollInterval,
			Concurrency:  DefaultWorkerConcurrency,
			Lease:        DefaultWorkerLease,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("core: delivery.timeout must be positive")
	}
	if c.Delivery.RetryDelay < 0 {
		return fmt.Errorf("core: delivery.retry_delay must not be negative")
	}
	if c.Delivery.MaxTry < 0 {
		return fmt.Errorf("core: delivery.max_try must not be negative")
	}
	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("core: worker.concurrency must not be negative")
	}
	return nil
}
