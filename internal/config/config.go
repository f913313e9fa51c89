package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	CORSOrigin    string
	// Meilisearch - empty URL disables it, SQL search takes over
	MeiliURL       string
	MeiliMasterKey string
	// Redis - empty URL disables the board snapshot cache
	RedisURL string
	CacheTTL time.Duration
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8484"),
		DatabaseURL:    getenv("DATABASE_URL", "./data/kanbo.db"),
		MigrationsDir:  getenv("KANBO_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:     getenv("KANBO_CORS_ORIGIN", "*"),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		RedisURL:       getenv("REDIS_URL", ""),
		CacheTTL:       time.Duration(getenvInt("KANBO_CACHE_TTL_SECONDS", 300)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
