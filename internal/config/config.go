// Package config loads service settings from an optional YAML file and
// command-line flags. Flags set explicitly on the command line win over the
// file; flag defaults only fill keys the file leaves out.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"confreg.org/internal/notify"
)

// SecretEnv names the environment variable holding the token signing secret.
const SecretEnv = "CONFREG_AUTH_SECRET"

// AdminPasswordEnv holds the password of the administrator seeded into the
// in-memory store. cmd/migrate bootstrap-admin reads it too.
const AdminPasswordEnv = "CONFREG_ADMIN_PASSWORD"

type Config struct {
	HTTP  HTTPConfig          `koanf:"http"`
	GRPC  GRPCConfig          `koanf:"grpc"`
	DB    DBConfig            `koanf:"db"`
	Auth  AuthConfig          `koanf:"auth"`
	Login LoginConfig         `koanf:"login"`
	Mail  notify.MailConfig   `koanf:"mail"`
	SMS   notify.TermiiConfig `koanf:"sms"`
	Log   LogConfig           `koanf:"log"`
	Seed  SeedConfig          `koanf:"seed"`
}

type HTTPConfig struct {
	Addr           string   `koanf:"addr"`
	CORS           []string `koanf:"cors"`
	MaxBody        int64    `koanf:"max_body"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// GRPCConfig configures the health service listener; an empty Addr disables it.
type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

// DBConfig points at PostgreSQL. With no DSN the service keeps its data in memory.
type DBConfig struct {
	DSN          string        `koanf:"dsn"`
	WaitAttempts uint64        `koanf:"wait_attempts"`
	WaitBase     time.Duration `koanf:"wait_base"`
}

type AuthConfig struct {
	Secret   string        `koanf:"secret"`
	Issuer   string        `koanf:"issuer"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// LoginConfig limits login attempts per client address.
type LoginConfig struct {
	Rate  float64 `koanf:"rate"`
	Burst int     `koanf:"burst"`
}

// SeedConfig describes the administrator created at startup when the service
// runs on the in-memory store, which bootstrap-admin cannot reach.
type SeedConfig struct {
	Fullname string `koanf:"fullname"`
	Email    string `koanf:"email"`
	Username string `koanf:"username"`
	Password string `koanf:"-"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RegisterFlags adds every setting to fs. Flag names map onto config keys by
// turning the first dash into a dot and the rest into underscores, so
// --db-wait-attempts sets db.wait_attempts.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")

	fs.String("http-addr", ":8080", "HTTP listen address")
	fs.StringSlice("http-cors", nil, "allowed CORS origins (glob patterns)")
	fs.Int64("http-max-body", 1<<20, "maximum request body size in bytes")
	fs.StringSlice("http-trusted-proxies", nil, "proxy addresses or CIDRs whose X-Forwarded-For is trusted")
	fs.String("grpc-addr", "", "gRPC health listen address (empty = disabled)")

	fs.String("db-dsn", "", "PostgreSQL connection string (empty = in-memory store)")
	fs.Uint64("db-wait-attempts", 10, "database connectivity retries at startup")
	fs.Duration("db-wait-base", 500*time.Millisecond, "base delay between database connectivity retries")

	fs.String("auth-issuer", "confreg", "token issuer")
	fs.Duration("auth-token-ttl", 24*time.Hour, "token lifetime")

	fs.Float64("login-rate", 1, "login attempts per second per client")
	fs.Int("login-burst", 5, "login attempt burst per client")

	fs.String("mail-host", "", "SMTP host")
	fs.String("mail-port", "587", "SMTP port")
	fs.String("mail-username", "", "SMTP username")
	fs.String("mail-from", "", "sender address")
	fs.String("mail-from-name", "ICSC Portal", "sender display name")
	fs.String("sms-endpoint", "", "Termii send endpoint")
	fs.String("sms-sender", "ICSC", "SMS sender id")

	fs.String("seed-fullname", "Administrator", "in-memory store: seeded administrator full name")
	fs.String("seed-email", "admin@localhost", "in-memory store: seeded administrator email")
	fs.String("seed-username", "admin", "in-memory store: seeded administrator username")

	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "json", "log format (json or console)")
}

func flagKey(name string) string {
	head, tail, ok := strings.Cut(name, "-")
	if !ok {
		return name
	}
	return head + "." + strings.ReplaceAll(tail, "-", "_")
}

// Load reads the file named by --config (if any), overlays fs, and applies
// secrets from the environment. fs must already be parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, _ := fs.GetString("config")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if f.Name == "config" {
			return "", nil
		}
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if v := os.Getenv(SecretEnv); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("CONFREG_SMTP_PASSWORD"); v != "" {
		cfg.Mail.Password = v
	}
	if v := os.Getenv("CONFREG_TERMII_API_KEY"); v != "" {
		cfg.SMS.APIKey = v
	}
	cfg.Seed.Password = os.Getenv(AdminPasswordEnv)
	return &cfg, nil
}

// Validate checks that the configuration is usable for serving.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, fmt.Errorf("auth secret is required (set %s)", SecretEnv))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Login.Rate <= 0 || c.Login.Burst <= 0 {
		errs = append(errs, errors.New("login.rate and login.burst must be positive"))
	}
	if c.HTTP.MaxBody <= 0 {
		errs = append(errs, errors.New("http.max_body must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be 'json' or 'console', got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
