package config

import "time"

type Config struct {
	UseLocal bool
	BaseURL  string
	Timeout  time.Duration
}
