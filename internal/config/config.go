package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	cbsConfig "github.com/iurnickita/loanmanager/internal/gateway/cbs/config"
	scoringConfig "github.com/iurnickita/loanmanager/internal/gateway/scoring/config"
	handlerConfig "github.com/iurnickita/loanmanager/internal/handler/config"
	loggerConfig "github.com/iurnickita/loanmanager/internal/logger/config"
	orchestratorConfig "github.com/iurnickita/loanmanager/internal/orchestrator/config"
	schedulerConfig "github.com/iurnickita/loanmanager/internal/scheduler/config"
	storeConfig "github.com/iurnickita/loanmanager/internal/store/config"
)

type Config struct {
	Handler      handlerConfig.Config
	Store        storeConfig.Config
	Logger       loggerConfig.Config
	CBS          cbsConfig.Config
	Scoring      scoringConfig.Config
	Scheduler    schedulerConfig.Config
	Orchestrator orchestratorConfig.Config
}

// Ключи переменных окружения
const (
	keyRunAddress        = "RUN_ADDRESS"
	keyDatabaseURI       = "DATABASE_URI"
	keyLogLevel          = "LOG_LEVEL"
	keyRedisAddr         = "REDIS_ADDR"
	keyRedisPassword     = "REDIS_PASSWORD"
	keyRedisDB           = "REDIS_DB"
	keyUseLocalCBS       = "USE_LOCAL_CBS"
	keyCBSBaseURL        = "CBS_BASE_URL"
	keyUseLocalScoring   = "USE_LOCAL_SCORING"
	keyScoringBaseURL    = "SCORING_ENGINE_BASE_URL"
	keyGatewayTimeout    = "GATEWAY_TIMEOUT"
	keyMaxScoringRetries = "MAX_SCORING_RETRIES"
	keyScoringRetryDelay = "SCORING_RETRY_DELAY"
)

func GetConfig() (Config, error) {
	return load(os.Args[1:])
}

// load собирает конфигурацию. Приоритет: флаг, переменная окружения, файл, значение по умолчанию.
func load(args []string) (Config, error) {
	v := viper.New()

	v.SetDefault(keyRunAddress, ":8080")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyRedisDB, 0)
	v.SetDefault(keyUseLocalCBS, true)
	v.SetDefault(keyUseLocalScoring, true)
	v.SetDefault(keyGatewayTimeout, "10s")
	v.SetDefault(keyMaxScoringRetries, 5)
	v.SetDefault(keyScoringRetryDelay, "30s")

	fs := pflag.NewFlagSet("loanmanager", pflag.ContinueOnError)
	fs.StringP("address", "a", "", "server address")
	fs.StringP("database", "d", "", "database dsn")
	fs.StringP("log-level", "l", "", "log level")
	fs.StringP("redis", "r", "", "redis address of the scoring task queue")
	configFile := fs.StringP("config", "c", "", "yaml config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	for key, flag := range map[string]string{
		keyRunAddress:  "address",
		keyDatabaseURI: "database",
		keyLogLevel:    "log-level",
		keyRedisAddr:   "redis",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, err
		}
	}

	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	timeout, err := duration(v, keyGatewayTimeout)
	if err != nil {
		return Config{}, err
	}
	retryDelay, err := duration(v, keyScoringRetryDelay)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Handler: handlerConfig.Config{ServerAddr: v.GetString(keyRunAddress)},
		Store:   storeConfig.Config{DBDsn: v.GetString(keyDatabaseURI)},
		Logger:  loggerConfig.Config{LogLevel: v.GetString(keyLogLevel)},
		CBS: cbsConfig.Config{
			UseLocal: v.GetBool(keyUseLocalCBS),
			BaseURL:  v.GetString(keyCBSBaseURL),
			Timeout:  timeout,
		},
		Scoring: scoringConfig.Config{
			UseLocal: v.GetBool(keyUseLocalScoring),
			BaseURL:  v.GetString(keyScoringBaseURL),
			Timeout:  timeout,
		},
		Scheduler: schedulerConfig.Config{
			RedisAddr:     v.GetString(keyRedisAddr),
			RedisPassword: v.GetString(keyRedisPassword),
			RedisDB:       v.GetInt(keyRedisDB),
		},
		Orchestrator: orchestratorConfig.Config{
			MaxRetries: v.GetInt(keyMaxScoringRetries),
			RetryDelay: retryDelay,
		},
	}, nil
}

// duration читает длительность с единицами ("30s", "1m"). Число без единиц - секунды.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
