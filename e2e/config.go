package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_HTTP_ADDR is the host:port of a running server, the suite is skipped when empty
	HTTPAddr string `envconfig:"E2E_HTTP_ADDR"`
	GrpcAddr string `envconfig:"E2E_GRPC_ADDR"`
	// JWT_SECRET must be the one the server was started with
	JWTSecret string `envconfig:"JWT_SECRET"`
	// E2E_DEBUG_JSON allows dumping every frame and gRPC body as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
