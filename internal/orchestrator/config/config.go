package config

import "time"

type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}
