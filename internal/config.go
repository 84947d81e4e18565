package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true" validate:"required"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080" validate:"min=1,max=65535"`
	GrpcPort             int           `env:"GRPC_PORT,default=9090" validate:"min=1,max=65535,nefield=Port"`
	JWTSecret            string        `env:"JWT_SECRET,required=true" validate:"min=16"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"min=1"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=2000" validate:"min=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`
	RedisAddr            string        `env:"REDIS_ADDR"`
	RedisChannel         string        `env:"REDIS_CHANNEL,default=market-chat.messages"`
	InstanceID           string        `env:"INSTANCE_ID"`
	HealthProbeInterval  time.Duration `env:"HEALTH_PROBE_INTERVAL,default=5s" validate:"gt=0"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=5s" validate:"gt=0"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(origin string, _ int) string {
		return strings.TrimSpace(origin)
	})
	return lo.Compact(origins)
}

// RelayEnabled reports whether messages are shared with other instances.
func (c Config) RelayEnabled() bool {
	return c.RedisAddr != ""
}
