package config

type Config struct {
	// Пустой DSN - хранение в памяти
	DBDsn string
}
