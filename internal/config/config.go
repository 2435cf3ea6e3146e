package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
}

const defaultJWTSecret = "dev-secret-change-me"

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=coderoom port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", defaultJWTSecret),
		Env:                   getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: getint("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getint("REFRESH_TOKEN_TTL_DAYS", 7),
	}
}

// Validate 拒绝明显不可用的配置；非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("default jwt secret is not allowed outside dev")
	}
	return nil
}
