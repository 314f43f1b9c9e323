// Package config loads application configuration from environment
// variables and an optional config file. Components receive the parts of
// Config they need at construction time — nothing reads process-wide
// state after startup.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates every knob the server needs.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Log struct {
		Level string
	}
	Auth struct {
		JWTSecret     string
		TokenTTL      time.Duration
		ResetTokenTTL time.Duration
	}
	Frontend struct {
		URL string
	}
	SMTP struct {
		Host        string
		Port        int
		Username    string
		Password    string
		FromName    string
		FromAddress string
		Encryption  string // starttls | ssl | none
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		PublicURL string // base URL objects are served from; endpoint/bucket if empty
	}
}

// Load reads configuration from the environment (prefix LMS_, dots become
// underscores: LMS_AUTH_JWTSECRET, LMS_SMTP_HOST, ...) and from an
// optional config.yaml in the working directory. A .env file, if present,
// seeds the environment without overriding existing variables.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("LMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:5000")
	v.SetDefault("database.path", "data/lms.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", 7*24*time.Hour)
	v.SetDefault("auth.resettokenttl", 15*time.Minute)
	v.SetDefault("frontend.url", "http://localhost:3000")
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.fromname", "LMS")
	v.SetDefault("smtp.fromaddress", "no-reply@localhost")
	v.SetDefault("smtp.encryption", "starttls")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "lms")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.publicurl", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}

// loadDotEnv reads KEY=VALUE lines from a .env file into the process
// environment. Existing variables win.
func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:eq])
		value := strings.Trim(strings.TrimSpace(line[eq+1:]), `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
