package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const EnvProduction = "production"

// productionKeys must be set explicitly when APP_ENV=production; their
// defaults only exist to make local development painless.
var productionKeys = []string{
	"JWT_SECRET",
	"JWT_ACCESS_TOKEN_TTL",
	"RESET_TOKEN_TTL",
	"PASSWORD_MIN_LENGTH",
}

type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Tokens   TokenConfig
	Password PasswordConfig
	Mail     MailConfig
	Search   SearchConfig
	Log      LogConfig
}

type AppConfig struct {
	Env string `env:"APP_ENV, default=development"`
}

type HTTPConfig struct {
	Host string `env:"HTTP_HOST, default=0.0.0.0"`
	Port string `env:"HTTP_PORT, default=8080"`
}

type GRPCConfig struct {
	Host   string `env:"GRPC_HOST, default=0.0.0.0"`
	Port   string `env:"GRPC_PORT, default=9090"`
	APIKey string `env:"GRPC_API_KEY"`
}

type MySQLConfig struct {
	DSN             string        `env:"MYSQL_DSN, required"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME, default=5m"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT, default=5s"`
}

type RedisConfig struct {
	Addr          string        `env:"REDIS_ADDR"`
	DB            int           `env:"REDIS_DB, default=0"`
	Password      string        `env:"REDIS_PASSWORD"`
	LoginAttempts int64         `env:"RATE_LIMIT_LOGIN_ATTEMPTS, default=10"`
	ResetAttempts int64         `env:"RATE_LIMIT_RESET_ATTEMPTS, default=5"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW, default=15m"`
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type JWTConfig struct {
	Secret         string        `env:"JWT_SECRET, required"`
	Issuer         string        `env:"JWT_ISSUER, default=ms-go-identity"`
	AccessTokenTTL time.Duration `env:"JWT_ACCESS_TOKEN_TTL, default=1h"`
}

type TokenConfig struct {
	ResetTTL time.Duration `env:"RESET_TOKEN_TTL, default=1h"`
	ResetURL string        `env:"RESET_URL, default=http://localhost:3000/reset-password"`
}

type PasswordConfig struct {
	Policy PasswordPolicy
}

type PasswordPolicy struct {
	MinLength        int  `env:"PASSWORD_MIN_LENGTH, default=6"`
	RequireUppercase bool `env:"PASSWORD_REQUIRE_UPPERCASE, default=false"`
	RequireLowercase bool `env:"PASSWORD_REQUIRE_LOWERCASE, default=false"`
	RequireNumber    bool `env:"PASSWORD_REQUIRE_NUMBER, default=false"`
	RequireSpecial   bool `env:"PASSWORD_REQUIRE_SPECIAL, default=false"`
}

type MailConfig struct {
	Host        string        `env:"SMTP_HOST"`
	Port        int           `env:"SMTP_PORT, default=587"`
	Username    string        `env:"SMTP_USERNAME"`
	Password    string        `env:"SMTP_PASSWORD"`
	From        string        `env:"SMTP_FROM, default=no-reply@localhost"`
	FromName    string        `env:"SMTP_FROM_NAME, default=Identity"`
	ImplicitTLS bool          `env:"SMTP_IMPLICIT_TLS, default=false"`
	TLSPolicy   string        `env:"SMTP_TLS_POLICY, default=opportunistic"`
	SendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT, default=10s"`
}

type SearchConfig struct {
	MaxResults int `env:"SEARCH_MAX_RESULTS, default=0"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL, default=info"`
	Format string `env:"LOG_FORMAT, default=json"`
}

func (p PasswordPolicy) Validate(password string) error {
	if len([]rune(password)) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

func (c *Config) DSN() string {
	return c.MySQL.DSN
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom builds the configuration from an arbitrary lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if err := cfg.validate(lookuper); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate(lookuper envconfig.Lookuper) error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes long")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return errors.New("JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if c.Tokens.ResetTTL <= 0 {
		return errors.New("RESET_TOKEN_TTL must be positive")
	}
	if c.Password.Policy.MinLength < 1 {
		return errors.New("PASSWORD_MIN_LENGTH must be at least 1")
	}
	switch strings.ToLower(c.Mail.TLSPolicy) {
	case "opportunistic", "mandatory", "none":
	default:
		return fmt.Errorf("SMTP_TLS_POLICY must be one of opportunistic, mandatory, none; got %q", c.Mail.TLSPolicy)
	}
	if c.Search.MaxResults < 0 {
		return errors.New("SEARCH_MAX_RESULTS must not be negative")
	}

	if c.IsProduction() {
		var missing []string
		for _, key := range productionKeys {
			if value, ok := lookuper.Lookup(key); !ok || strings.TrimSpace(value) == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("production environment requires explicit values for: %s", strings.Join(missing, ", "))
		}
	}

	return nil
}
