package config

import "time"

type Config struct {
	// Пустой адрес - очередь в памяти процесса
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueKey      string
	PollInterval  time.Duration
}
