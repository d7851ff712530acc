package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"5000" validate:"min=1000,max=65535"`

	ExecApiUrl         string `env:"EXEC_API_URL"         envDefault:"https://emkc.org/api/v2/piston/execute" validate:"url"`
	ExecTimeoutSeconds uint   `env:"EXEC_TIMEOUT_SECONDS" envDefault:"10"                                     validate:"min=1,max=120"`

	// Cross-instance event bridge; disabled while the host is empty.
	RedisEventsHost string `env:"REDIS_EVENTS_HOST" envDefault:""`
	RedisEventsPort uint16 `env:"REDIS_EVENTS_PORT" envDefault:"6379" validate:"min=1,max=65535"`

	SendBufferSize int `env:"SEND_BUFFER_SIZE" envDefault:"256" validate:"min=16"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
