package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"workspace_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"workspace_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"workspace_db"`

	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost    string `env:"REDIS_HOST"    envDefault:"localhost"`
	RedisPort    uint16 `env:"REDIS_PORT"    envDefault:"6379" validate:"min=1000,max=65535"`

	S3Endpoint  string `env:"S3_ENDPOINT"   envDefault:"localhost:9000" validate:"required"`
	S3AccessKey string `env:"S3_ACCESS_KEY" envDefault:"minioadmin"`
	S3SecretKey string `env:"S3_SECRET_KEY" envDefault:"minioadmin"`
	S3Bucket    string `env:"S3_BUCKET"     envDefault:"documents" validate:"required"`
	S3Region    string `env:"S3_REGION"     envDefault:"us-east-1" validate:"required"`
	S3UseSSL    bool   `env:"S3_USE_SSL"    envDefault:"false"`

	SignedURLTTLSeconds int `env:"SIGNED_URL_TTL_SECONDS" envDefault:"3600" validate:"min=1,max=604800"`

	BackfillLimit    int   `env:"CHAT_BACKFILL_LIMIT"     envDefault:"50"    validate:"min=1,max=50"`
	WsReadLimit      int64 `env:"WS_READ_LIMIT"           envDefault:"65536" validate:"min=512"`
	NotifyRejections bool  `env:"CHAT_NOTIFY_REJECTIONS"  envDefault:"false"`

	NotifyEnabled bool `env:"NOTIFY_ENABLED" envDefault:"false"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
