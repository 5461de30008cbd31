package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	JWTSecret           string
	ProgressCacheTTL    time.Duration
	AuthorityRefresh    time.Duration
	OpenSweepInterval   time.Duration
	ExpireSweepInterval time.Duration
	InstitutionTimezone string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SISWA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Siswa Progress API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("progress.cache_ttl", "30s")
	v.SetDefault("authority.refresh", "30s")
	v.SetDefault("sweep.open_interval", "10m")
	v.SetDefault("sweep.expire_interval", "1h")
	v.SetDefault("institution.timezone", "Asia/Jakarta")

	cacheTTL, err := parseDuration(v, "progress.cache_ttl", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	authorityRefresh, err := parseDuration(v, "authority.refresh", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	openInterval, err := parseDuration(v, "sweep.open_interval", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	expireInterval, err := parseDuration(v, "sweep.expire_interval", time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		ProgressCacheTTL:    cacheTTL,
		AuthorityRefresh:    authorityRefresh,
		OpenSweepInterval:   openInterval,
		ExpireSweepInterval: expireInterval,
		InstitutionTimezone: v.GetString("institution.timezone"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
