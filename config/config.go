package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const productionSecretMinLength = 64

type Config struct {
	App           AppConfig           `envPrefix:"KIT_APP_"`
	Server        ServerConfig        `envPrefix:"KIT_SERVER_"`
	Log           LogConfig           `envPrefix:"KIT_LOG_"`
	Database      DatabaseConfig      `envPrefix:"KIT_DB_"`
	Auth          AuthConfig          `envPrefix:"KIT_AUTH_"`
	JWT           JWTConfig           `envPrefix:"KIT_JWT_"`
	RefreshToken  RefreshTokenConfig  `envPrefix:"KIT_REFRESH_TOKEN_"`
	PasswordReset PasswordResetConfig `envPrefix:"KIT_PASSWORD_RESET_"`
	Mail          MailConfig          `envPrefix:"KIT_MAIL_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"Keep in Touch"`
	Environment string `env:"ENV" envDefault:"development"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3001"`
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"3000"`
}

type LogConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"json"`
	OutputPath string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"keepintouch.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	BcryptCost        int `env:"BCRYPT_COST" envDefault:"12"`
	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" envDefault:"6"`
}

type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	Issuer        string        `env:"ISSUER" envDefault:"keepintouch"`
}

type RefreshTokenConfig struct {
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type PasswordResetConfig struct {
	TokenLength     int           `env:"TOKEN_LENGTH" envDefault:"32"`
	Expiry          time.Duration `env:"EXPIRY" envDefault:"15m"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"15m"`
}

type MailConfig struct {
	Host         string `env:"HOST"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress  string `env:"FROM_ADDRESS" envDefault:"noreply@keepintouch.com"`
	FromName     string `env:"FROM_NAME" envDefault:"Keep in Touch"`
	TemplatesDir string `env:"TEMPLATES_DIR" envDefault:"templates/mail"`
}

func LoadConfig(cfg *Config) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	return cfg.Validate()
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate enforces the invariants the services assume at construction time,
// most importantly the signing-secret length floor (raised in production).
func (c *Config) Validate() error {
	minLength := 32
	if c.IsProduction() {
		minLength = productionSecretMinLength
	}

	if c.JWT.AccessSecret == "" {
		return errors.New("KIT_JWT_ACCESS_SECRET is required")
	}
	if c.JWT.RefreshSecret == "" {
		return errors.New("KIT_JWT_REFRESH_SECRET is required")
	}
	if len(c.JWT.AccessSecret) < minLength {
		return fmt.Errorf("KIT_JWT_ACCESS_SECRET must be at least %d characters long", minLength)
	}
	if len(c.JWT.RefreshSecret) < minLength {
		return fmt.Errorf("KIT_JWT_REFRESH_SECRET must be at least %d characters long", minLength)
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("KIT_JWT_ACCESS_SECRET and KIT_JWT_REFRESH_SECRET must differ")
	}

	if c.JWT.AccessExpiry <= 0 || c.JWT.RefreshExpiry <= 0 {
		return errors.New("JWT expiries must be positive durations")
	}

	if c.IsProduction() {
		if c.Mail.Host == "" {
			return errors.New("KIT_MAIL_HOST must be set in production")
		}
		if c.Mail.Username == "" || c.Mail.Password == "" {
			return errors.New("KIT_MAIL_USERNAME and KIT_MAIL_PASSWORD must be set in production")
		}
	}

	return nil
}
