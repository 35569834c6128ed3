package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"basebuzz/auth"
	"basebuzz/cache"
	"basebuzz/http"
	"basebuzz/logger"
	"basebuzz/storage"
)

// Config is the configuration of the whole app. It is read from .config.json if present,
// and every key can be overridden by an environment variable: BASEBUZZ_ followed by the
// upper-cased key path, dots replaced by underscores, e.g. BASEBUZZ_DATABASE_HOST.
type Config struct {
	Port      int                  `mapstructure:"port"`
	Env       string               `mapstructure:"env"`
	ClientURL string               `mapstructure:"client_url"`
	Secret    string               `mapstructure:"secret"`
	Provider  auth.ProviderConfig  `mapstructure:"provider"`
	Wallet    auth.Config          `mapstructure:"wallet"`
	Database  DatabaseConfig       `mapstructure:"database"`
	Redis     cache.Config         `mapstructure:"redis"`
	Storage   storage.Config       `mapstructure:"storage"`
	CSRF      CSRFConfig           `mapstructure:"csrf"`
	RateLimit http.RateLimitConfig `mapstructure:"rate_limit"`
	HTTP      HTTPConfig           `mapstructure:"http"`
	Log       logger.Config        `mapstructure:"log"`
}

// HTTPConfig holds server settings that depend on the deployment.
// TrustedProxies lists the IPs or CIDR ranges of reverse proxies whose
// X-Forwarded-For header is honoured.
type HTTPConfig struct {
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type CSRFConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool {
	return c.Env == "prod"
}

const (
	configName = ".config"
	envPrefix  = "BASEBUZZ"
	devSecret  = "basebuzz-dev-secret-do-not-use-in-prod"
)

// setDefaults registers a default for every key, which also makes every key
// visible to the environment lookup.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 1111)
	v.SetDefault("env", "dev")
	v.SetDefault("client_url", "http://localhost:3000")
	v.SetDefault("secret", devSecret)

	v.SetDefault("provider.jwt_secret", "")
	v.SetDefault("provider.audience", "authenticated")

	v.SetDefault("wallet.domain", "localhost:3000")
	v.SetDefault("wallet.uri", "")
	v.SetDefault("wallet.statement", "")
	v.SetDefault("wallet.chain_ids", auth.DefaultChainIDs)
	v.SetDefault("wallet.nonce_ttl", "5m")
	v.SetDefault("wallet.token_ttl", "168h")
	v.SetDefault("wallet.session_ttl", "720h")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "basebuzz")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "basebuzz.db")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.base_path", "images")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.s3.public_url", "")
	v.SetDefault("storage.s3.presign_ttl", "0s")

	v.SetDefault("csrf.enabled", false)
	v.SetDefault("rate_limit.rps", 1)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// LoadConfig loads the configuration from a .env file, .config.json in dir and the environment.
// If isProd is true, that means we're in production. In that case the .config.json file
// is required, and the secret must have been changed from its development default.
func LoadConfig(dir string, isProd bool) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("err loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("json")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("err reading config: %w", err)
		}
		if isProd {
			return Config{}, fmt.Errorf("a %s.json file is required in production", configName)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("err decoding config: %w", err)
	}
	if isProd {
		c.Env = "prod"
	}
	if c.IsProd() && (c.Secret == "" || c.Secret == devSecret) {
		return Config{}, fmt.Errorf("secret must be set in production")
	}
	return c, nil
}
