package testutils

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/keepintouch/backend/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "Keep in Touch Test",
			Environment: "test",
			FrontendURL: "http://localhost:3001",
		},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "0",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "console",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		Auth: config.AuthConfig{
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 6,
		},
		JWT: config.JWTConfig{
			AccessSecret:  "test-access-secret-at-least-32-chars!!",
			RefreshSecret: "test-refresh-secret-at-least-32-chars!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
			Issuer:        "keepintouch-test",
		},
		RefreshToken: config.RefreshTokenConfig{
			BcryptCost:      bcrypt.MinCost,
			CleanupInterval: 0,
		},
		PasswordReset: config.PasswordResetConfig{
			TokenLength:     32,
			Expiry:          15 * time.Minute,
			BcryptCost:      bcrypt.MinCost,
			CleanupInterval: 0,
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        2525,
			FromAddress: "noreply@test.local",
			FromName:    "Keep in Touch Test",
		},
	}
}

var TestUsers = struct {
	Alice struct {
		Username string
		Name     string
		Email    string
		Password string
	}
	Bob struct {
		Username string
		Name     string
		Email    string
		Password string
	}
}{
	Alice: struct {
		Username string
		Name     string
		Email    string
		Password string
	}{
		Username: "alice",
		Name:     "Alice Example",
		Email:    "alice@example.com",
		Password: "password123",
	},
	Bob: struct {
		Username string
		Name     string
		Email    string
		Password string
	}{
		Username: "bob",
		Name:     "Bob Example",
		Email:    "bob@example.com",
		Password: "hunter2secret",
	},
}
