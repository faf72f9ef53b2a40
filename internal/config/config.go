package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all process configuration, loaded once at startup.
type Config struct {
	Environment   string
	Port          string
	DBHost        string
	DBPort        string
	DBUsername    string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	ResendAPIKey  string
	WebhookSecret string
	SessionSecret string
	Users         []UserCredential
	Timezone      string
}

// UserCredential is one login entry: a username and its bcrypt password hash.
// The credential table is loaded here, at process start, and handed to the
// auth user store; nothing is computed lazily at first login.
type UserCredential struct {
	Username     string
	PasswordHash string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MAILBOX_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	users, err := parseUsers(os.Getenv("MAILBOX_USERS"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Environment:   env,
		Port:          getEnvOrDefault("PORT", "8080"),
		DBHost:        getEnvOrDefault("MAILBOX_DB_HOST", "localhost"),
		DBPort:        getEnvOrDefault("MAILBOX_DB_PORT", "5432"),
		DBUsername:    getEnvOrDefault("MAILBOX_DB_USER", "mailbox"),
		DBPassword:    os.Getenv("MAILBOX_DB_PASSWORD"),
		DBName:        getEnvOrDefault("MAILBOX_DB_NAME", "mailbox"),
		DBSSLMode:     getEnvOrDefault("MAILBOX_DB_SSLMODE", "disable"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		WebhookSecret: os.Getenv("RESEND_WEBHOOK_SECRET"),
		SessionSecret: os.Getenv("MAILBOX_SESSION_SECRET"),
		Users:         users,
		Timezone:      getEnvOrDefault("TZ", "UTC"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("MAILBOX_DB_PASSWORD is required")
	}

	if c.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY is required")
	}

	if c.SessionSecret == "" {
		return fmt.Errorf("MAILBOX_SESSION_SECRET is required")
	}

	if len(c.Users) == 0 {
		return fmt.Errorf("MAILBOX_USERS is required (comma-separated username:bcrypt-hash pairs)")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// parseUsers parses "alice:$2a$...,bob:$2a$..." into credentials. Bcrypt
// hashes contain no commas or colons beyond the separator, so a single split
// per entry is safe.
func parseUsers(raw string) ([]UserCredential, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var users []UserCredential
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		username, hash, found := strings.Cut(entry, ":")
		if !found || username == "" || hash == "" {
			return nil, fmt.Errorf("invalid MAILBOX_USERS entry %q, want username:bcrypt-hash", entry)
		}
		users = append(users, UserCredential{Username: username, PasswordHash: hash})
	}
	return users, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
