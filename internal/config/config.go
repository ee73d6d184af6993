package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	Port           string   `env:"PORT"            envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	JWTSecret      string   `env:"JWT_SECRET"      envDefault:"your-secret-key-change-this-in-production"`
	InstanceID     string   `env:"INSTANCE_ID"     envDefault:""`

	DatabaseURL          string `env:"DATABASE_URL"                 envDefault:""`
	DBMaxOpenConns       int    `env:"DB_MAX_OPEN_CONNS"            envDefault:"25"`
	DBMaxIdleConns       int    `env:"DB_MAX_IDLE_CONNS"            envDefault:"25"`
	DBConnMaxLifetimeMin int    `env:"DB_CONN_MAX_LIFETIME_MINUTES" envDefault:"5"`

	RedisURL         string `env:"REDIS_URL"          envDefault:""`
	RedisPassword    string `env:"REDIS_PASSWORD"     envDefault:""`
	RoomCodeTTLHours int    `env:"ROOM_CODE_TTL_HOURS" envDefault:"24"`
	EventBufferSize  int    `env:"EVENT_BUFFER_SIZE"   envDefault:"1024"`

	MatchTimeLimitSec    int `env:"MATCH_TIME_LIMIT"     envDefault:"600"`
	RoomRecycleDelaySec  int `env:"ROOM_RECYCLE_DELAY"   envDefault:"5"`
	QueueAutoStartSec    int `env:"QUEUE_AUTO_START"     envDefault:"15"`
	EvaluationTimeoutSec int `env:"EVALUATION_TIMEOUT"   envDefault:"12"`
	CleanupIntervalSec   int `env:"CLEANUP_INTERVAL"     envDefault:"300"`

	ExecutorURL        string `env:"EXECUTOR_URL"     envDefault:"http://localhost:3001"`
	ExecutorTimeoutSec int    `env:"EXECUTOR_TIMEOUT" envDefault:"10"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

var AppConfig *Config

// LoadConfig reads the environment into AppConfig.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("unable to parse environment variables: %w", err)
	}
	cfg.AllowedOrigins = cleanOrigins(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("PORT must not be empty")
	case c.MatchTimeLimitSec <= 0:
		return fmt.Errorf("MATCH_TIME_LIMIT must be positive, got %d", c.MatchTimeLimitSec)
	case c.EvaluationTimeoutSec <= 0:
		return fmt.Errorf("EVALUATION_TIMEOUT must be positive, got %d", c.EvaluationTimeoutSec)
	case c.RoomRecycleDelaySec <= 0:
		return fmt.Errorf("ROOM_RECYCLE_DELAY must be positive, got %d", c.RoomRecycleDelaySec)
	case c.QueueAutoStartSec < 0:
		return fmt.Errorf("QUEUE_AUTO_START must not be negative, got %d", c.QueueAutoStartSec)
	case c.CleanupIntervalSec <= 0:
		return fmt.Errorf("CLEANUP_INTERVAL must be positive, got %d", c.CleanupIntervalSec)
	}
	return nil
}

func (c *Config) MatchTimeLimit() time.Duration { return seconds(c.MatchTimeLimitSec) }

func (c *Config) RoomRecycleDelay() time.Duration { return seconds(c.RoomRecycleDelaySec) }

func (c *Config) QueueAutoStart() time.Duration { return seconds(c.QueueAutoStartSec) }

func (c *Config) EvaluationTimeout() time.Duration { return seconds(c.EvaluationTimeoutSec) }

func (c *Config) ExecutorTimeout() time.Duration { return seconds(c.ExecutorTimeoutSec) }

func (c *Config) CleanupInterval() time.Duration { return seconds(c.CleanupIntervalSec) }

func (c *Config) RoomCodeTTL() time.Duration { return time.Duration(c.RoomCodeTTLHours) * time.Hour }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func cleanOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
