package main

import "time"

type Config struct {
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`
	GlobalRetention   time.Duration `env:"GLOBAL_RETENTION,default=1h"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	HealthInterval    time.Duration `env:"HEALTH_INTERVAL,default=30s"`
	// CENSORED_WORDS is a comma-separated dictionary; empty disables moderation
	CensoredWords []string `env:"CENSORED_WORDS"`
}
