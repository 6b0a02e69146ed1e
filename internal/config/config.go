// Package config assembles server settings from defaults, an optional YAML
// file, the environment (including a .env file) and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	Addr              string        `yaml:"addr"`
	StoreURL          string        `yaml:"store_url"`
	StoreKey          string        `yaml:"store_key"`
	JWTKey            string        `yaml:"jwt_key"`
	AccessTTL         time.Duration `yaml:"access_ttl"`
	CookieDomain      string        `yaml:"cookie_domain"`
	SecureCookies     bool          `yaml:"secure_cookies"`
	AllowUnownedEdits bool          `yaml:"allow_unowned_edits"`
	PublicURL         string        `yaml:"public_url"`
	TrustedProxy      bool          `yaml:"trusted_proxy"`
	Dev               bool          `yaml:"dev"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	Login             LoginConfig   `yaml:"login"`
}

// LoginConfig tunes login throttling.
type LoginConfig struct {
	Window   time.Duration `yaml:"window"`
	MaxFails int           `yaml:"max_fails"`
	BlockFor time.Duration `yaml:"block_for"`
}

// Env looks up an environment variable; empty means unset.
type Env func(key string) string

// Default returns sane defaults.
func Default() Config {
	return Config{
		Addr:         ":8080",
		AccessTTL:    15 * time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		Login:        LoginConfig{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute},
	}
}

// OSEnv returns the process environment layered over the variables of the
// dotenv file at path. A missing file is not an error.
func OSEnv(path string) (Env, error) {
	file, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return file[key]
	}, nil
}

// Load parses args (without the program name) and resolves the configuration.
func Load(args []string, env Env, stderr io.Writer) (Config, error) {
	fs := flag.NewFlagSet("pollboard", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		file              = fs.String("config", "", "optional YAML config file")
		addr              = fs.String("addr", "", "listen address")
		storeURL          = fs.String("store-url", "", "PostgreSQL URL")
		storeKey          = fs.String("store-key", "", "PostgreSQL role password (prefer env)")
		jwtKey            = fs.String("jwt-key", "", "HS256 signing key (prefer env)")
		accessTTL         = fs.Duration("access-ttl", 0, "access token TTL")
		cookieDomain      = fs.String("cookie-domain", "", "session cookie domain")
		secureCookies     = fs.Bool("secure-cookies", false, "mark session cookies Secure")
		allowUnownedEdits = fs.Bool("allow-unowned-edits", false, "let anyone edit or delete polls without an owner")
		publicURL         = fs.String("public-url", "", "external base URL used in share links")
		trustedProxy      = fs.Bool("trusted-proxy", false, "take client addresses from X-Forwarded-For (only behind a proxy)")
		dev               = fs.Bool("dev", false, "development logging")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	path := *file
	if path == "" {
		path = env("POLLBOARD_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "store-url":
			cfg.StoreURL = *storeURL
		case "store-key":
			cfg.StoreKey = *storeKey
		case "jwt-key":
			cfg.JWTKey = *jwtKey
		case "access-ttl":
			cfg.AccessTTL = *accessTTL
		case "cookie-domain":
			cfg.CookieDomain = *cookieDomain
		case "secure-cookies":
			cfg.SecureCookies = *secureCookies
		case "allow-unowned-edits":
			cfg.AllowUnownedEdits = *allowUnownedEdits
		case "public-url":
			cfg.PublicURL = *publicURL
		case "trusted-proxy":
			cfg.TrustedProxy = *trustedProxy
		case "dev":
			cfg.Dev = *dev
		}
	})

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, env Env) error {
	if v := env("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := first(env, "STORE_URL", "DATABASE_URL"); v != "" {
		cfg.StoreURL = v
	}
	if v := first(env, "STORE_SERVICE_KEY", "STORE_ANON_KEY"); v != "" {
		cfg.StoreKey = v
	}
	if v := env("JWT_KEY"); v != "" {
		cfg.JWTKey = v
	}
	if v := env("PUBLIC_URL"); v != "" {
		cfg.PublicURL = v
	}
	if v := env("ALLOW_UNOWNED_EDITS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("invalid ALLOW_UNOWNED_EDITS env variable")
		}
		cfg.AllowUnownedEdits = b
	}
	if v := env("TRUSTED_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("invalid TRUSTED_PROXY env variable")
		}
		cfg.TrustedProxy = b
	}
	return nil
}

func first(env Env, keys ...string) string {
	for _, k := range keys {
		if v := env(k); v != "" {
			return v
		}
	}
	return ""
}

// StoreConfigured reports whether both store URL and key are present.
func (c Config) StoreConfigured() bool { return c.StoreURL != "" && c.StoreKey != "" }

// Validate checks that required fields are present and values are sane.
// A missing store is allowed: the server then answers every command with a
// store-unavailable error.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.JWTKey == "" {
		return errors.New("missing jwt signing key (-jwt-key or JWT_KEY)")
	}
	if c.AccessTTL <= 0 {
		return errors.New("access_ttl must be > 0")
	}
	if c.Login.MaxFails <= 0 || c.Login.Window <= 0 || c.Login.BlockFor <= 0 {
		return errors.New("login window, max_fails and block_for must be > 0")
	}
	return nil
}
