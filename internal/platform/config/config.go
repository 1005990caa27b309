// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Each component receives its own sub-config (Password, Token,
    OTP, Ownership) through its constructor.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the credguard API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis), used for the OTP failure throttle.
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// RSA key pair used to sign access tokens.
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// Cross-Origin Resource Sharing
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"localhost"`

	Password  Password  `envPrefix:"PASSWORD_"`
	Token     Token     `envPrefix:"TOKEN_"`
	OTP       OTP       `envPrefix:"OTP_"`
	Ownership Ownership `envPrefix:"OWNERSHIP_"`
}

// Password configures the password policy and the hashing collaborator.
type Password struct {
	MinLength int `env:"MIN_LENGTH" envDefault:"8"`
	MaxLength int `env:"MAX_LENGTH" envDefault:"72"`

	// Blacklist is a comma separated list of rejected passwords.
	Blacklist []string `env:"BLACKLIST" envSeparator:","`
	// BlacklistFile points to a newline separated list merged into Blacklist.
	BlacklistFile string `env:"BLACKLIST_FILE"`

	// HashField names the record column that receives the password hash.
	HashField string `env:"HASH_FIELD" envDefault:"passwordhash"`

	// Hasher selects the hashing collaborator ("bcrypt" or "argon2id").
	Hasher     string `env:"HASHER"      envDefault:"bcrypt"`
	BcryptCost int    `env:"BCRYPT_COST" envDefault:"12"`
}

// Token configures confirmation and reset token validity.
type Token struct {
	ConfirmationTTL time.Duration `env:"CONFIRMATION_TTL" envDefault:"24h"`
	ResetTTL        time.Duration `env:"RESET_TTL"        envDefault:"1h"`
}

// OTP configures the failed-attempt throttle in front of the OTP validator.
type OTP struct {
	MaxFailures   int           `env:"MAX_FAILURES"   envDefault:"5"`
	FailureWindow time.Duration `env:"FAILURE_WINDOW" envDefault:"15m"`
}

// Ownership configures the resource ownership guard.
type Ownership struct {
	Prefix       string `env:"PREFIX"        envDefault:"/users"`
	CheckShow    bool   `env:"CHECK_SHOW"    envDefault:"true"`
	FallbackPath string `env:"FALLBACK_PATH"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if cfg.Password.BlacklistFile != "" {
		entries, err := readBlacklist(cfg.Password.BlacklistFile)
		if err != nil {
			return nil, err
		}
		cfg.Password.Blacklist = append(cfg.Password.Blacklist, entries...)
	}

	if cfg.Ownership.FallbackPath == "" {
		cfg.Ownership.FallbackPath = cfg.Ownership.Prefix
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects combinations that would make the password policy unusable.
func (c *Config) validate() error {
	if c.Password.MinLength < 1 {
		return fmt.Errorf("config: PASSWORD_MIN_LENGTH must be positive, got %d", c.Password.MinLength)
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return fmt.Errorf("config: PASSWORD_MAX_LENGTH (%d) is below PASSWORD_MIN_LENGTH (%d)",
			c.Password.MaxLength, c.Password.MinLength)
	}
	if !strings.HasPrefix(c.Ownership.Prefix, "/") {
		return fmt.Errorf("config: OWNERSHIP_PREFIX must start with '/', got %q", c.Ownership.Prefix)
	}
	return nil
}

// readBlacklist loads one password per line, skipping blanks and '#' comments.
func readBlacklist(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to open password blacklist %s: %w", path, err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed to read password blacklist %s: %w", path, err)
	}

	return entries, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
