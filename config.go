package main

import (
	"log"
	"os"
	"strconv"
	"time"
)

// config is read once from the environment at startup.
type config struct {
	Port               string
	CORSAllowedOrigins string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	PresenceTTL        time.Duration
	WSEventsPerSecond  float64
	WSEventBurst       int
	ShutdownTimeout    time.Duration
}

func loadConfig() config {
	return config{
		Port:               getEnv("PORT", "3000"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		PresenceTTL:        getEnvDuration("PRESENCE_TTL", 24*time.Hour),
		WSEventsPerSecond:  getEnvFloat("WS_EVENTS_PER_SECOND", 10),
		WSEventBurst:       getEnvInt("WS_EVENT_BURST", 20),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("Invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
