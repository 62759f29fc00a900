// Package config загружает конфигурацию Taskq.
//
// Источники по убыванию приоритета: флаги командной строки, переменные
// окружения TASKQ_* ("." в ключе заменяется на "_"), файл конфигурации,
// значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shaiso/Taskq/internal/scheduler"
)

// Config keys.
const (
	KeyBroker = "broker"

	KeyRabbitHost     = "rabbitmq.host"
	KeyRabbitPort     = "rabbitmq.port"
	KeyRabbitUser     = "rabbitmq.user"
	KeyRabbitPassword = "rabbitmq.password"
	KeyRabbitVHost    = "rabbitmq.vhost"

	KeyRedisAddr     = "redis.addr"
	KeyRedisPassword = "redis.password"
	KeyRedisDB       = "redis.db"

	KeyQueue      = "queue"
	KeyLocal      = "local"
	KeyEager      = "eager"
	KeyDeadLetter = "dead_letter"
	KeyIsolation  = "isolation"

	KeyMaxRunTime = "max_run_time"
	KeyMaxTasks   = "max_tasks"
	KeyMaxLoad    = "max_load"

	KeyDatabaseURL = "database_url"
	KeyHTTPAddr    = "http.addr"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
	KeySchedule    = "schedule"
)

// Брокеры и режимы изоляции.
const (
	BrokerAMQP   = "amqp"
	BrokerRedis  = "redis"
	BrokerMemory = "memory"

	IsolationProcess = "process"
	IsolationInProc  = "inproc"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "TASKQ"

// DefaultQueue — очередь по умолчанию.
const DefaultQueue = "taskq"

// ErrInvalid — конфигурация не прошла проверку.
var ErrInvalid = errors.New("invalid configuration")

// Config — конфигурация всех бинарников.
type Config struct {
	Broker   string         `mapstructure:"broker"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Redis    RedisConfig    `mapstructure:"redis"`

	Queue      string `mapstructure:"queue"`
	Local      bool   `mapstructure:"local"`
	Eager      bool   `mapstructure:"eager"`
	DeadLetter bool   `mapstructure:"dead_letter"`
	Isolation  string `mapstructure:"isolation"`

	// MaxRunTime — секунды работы worker'а, 0 — без ограничения.
	MaxRunTime float64 `mapstructure:"max_run_time"`
	MaxTasks   int64   `mapstructure:"max_tasks"`
	MaxLoad    float64 `mapstructure:"max_load"`

	DatabaseURL string     `mapstructure:"database_url"`
	HTTP        HTTPConfig `mapstructure:"http"`
	Log         LogConfig  `mapstructure:"log"`

	Schedule []scheduler.Entry `mapstructure:"schedule"`
}

// RabbitMQConfig — endpoint RabbitMQ.
type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
}

// RedisConfig — endpoint Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig — admin API и метрики.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MaxRunTimeDuration возвращает MaxRunTime как time.Duration.
func (c *Config) MaxRunTimeDuration() time.Duration {
	return time.Duration(c.MaxRunTime * float64(time.Second))
}

// setDefaults задаёт значения по умолчанию.
func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBroker, BrokerAMQP)

	v.SetDefault(KeyRabbitHost, "localhost")
	v.SetDefault(KeyRabbitPort, 5672)
	v.SetDefault(KeyRabbitUser, "guest")
	v.SetDefault(KeyRabbitPassword, "guest")
	v.SetDefault(KeyRabbitVHost, "/")

	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)

	v.SetDefault(KeyQueue, DefaultQueue)
	v.SetDefault(KeyLocal, false)
	v.SetDefault(KeyEager, false)
	v.SetDefault(KeyDeadLetter, false)
	v.SetDefault(KeyIsolation, IsolationProcess)

	v.SetDefault(KeyMaxRunTime, 0.0)
	v.SetDefault(KeyMaxTasks, 0)
	v.SetDefault(KeyMaxLoad, 0.0)

	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyHTTPAddr, ":8082")
	v.SetDefault(KeyLogLevel, "INFO")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeySchedule, []any{})
}

// Load читает конфигурацию.
//
// path — явный файл (ошибка, если его нет); пустой path ищет taskq.yaml
// (или .toml/.json) в текущей директории и /etc/taskq. flags — опционально:
// флаги, имя которых совпадает с ключом ("-" вместо "_" и "."),
// переопределяют остальные источники, если заданы.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taskq")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/taskq")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindFlags привязывает флаги к ключам конфигурации.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	keys := make(map[string]string)
	for _, key := range v.AllKeys() {
		keys[flagName(key)] = key
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := keys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	if err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// flagName переводит ключ в имя флага: "rabbitmq.host" → "rabbitmq-host".
func flagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	switch c.Broker {
	case BrokerAMQP, BrokerRedis, BrokerMemory:
	default:
		return fmt.Errorf("%w: unknown broker %q", ErrInvalid, c.Broker)
	}

	switch c.Isolation {
	case IsolationProcess, IsolationInProc:
	default:
		return fmt.Errorf("%w: unknown isolation %q", ErrInvalid, c.Isolation)
	}

	if c.Queue == "" {
		return fmt.Errorf("%w: queue is required", ErrInvalid)
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		return fmt.Errorf("%w: invalid rabbitmq port %d", ErrInvalid, c.RabbitMQ.Port)
	}
	if c.MaxRunTime < 0 {
		return fmt.Errorf("%w: max_run_time must not be negative", ErrInvalid)
	}
	if c.MaxTasks < 0 {
		return fmt.Errorf("%w: max_tasks must not be negative", ErrInvalid)
	}
	if c.MaxLoad < 0 {
		return fmt.Errorf("%w: max_load must not be negative", ErrInvalid)
	}

	for _, e := range c.Schedule {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: schedule: %v", ErrInvalid, err)
		}
	}
	return nil
}
