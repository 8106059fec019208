package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DB      DBConfig
	JWT     JWTConfig
	Server  ServerConfig
	SMTP    SMTPConfig
	Invites InvitesConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port string
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

type InvitesConfig struct {
	// RequireFamilyAdmin gates invitation creation on holding the family
	// admin role. Turning it off lets any member invite.
	RequireFamilyAdmin bool
	// SweepSchedule is a cron expression for the expiry sweep.
	SweepSchedule string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "heritago"),
			Password: getEnv("DB_PASSWORD", "heritago_secret"),
			Name:     getEnv("DB_NAME", "heritago"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			From:     getEnv("SMTP_EMAIL", ""),
			Password: getEnv("SMTP_PASS", ""),
		},
		Invites: InvitesConfig{
			RequireFamilyAdmin: getEnvAsBool("INVITES_REQUIRE_FAMILY_ADMIN", true),
			SweepSchedule:      getEnv("INVITES_SWEEP_SCHEDULE", "0 * * * *"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
