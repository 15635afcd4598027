// Package config loads application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envAliases keeps the flat variable names used by existing deployments.
var envAliases = map[string]string{
	"server.port":       "PORT",
	"database.driver":   "DB_DRIVER",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.name":     "DB_NAME",
	"database.path":     "DB_PATH",
	"auth.jwt_secret":   "JWT_SECRET",
	"redis.url":         "REDIS_URL",
	"smtp.host":         "SMTP_HOST",
	"smtp.port":         "SMTP_PORT",
	"smtp.username":     "SMTP_USERNAME",
	"smtp.password":     "SMTP_PASSWORD",
	"smtp.from":         "SMTP_FROM",
	"logging.env":       "APP_ENV",
	"logging.level":     "LOG_LEVEL",
}

// Flags registers the command-line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("taskhub", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("env-file", ".env", "path to a dotenv file (ignored when missing)")
	fs.String("server.host", "", "listen host")
	fs.Int("server.port", 0, "listen port")
	fs.String("database.driver", "", "database driver: mysql or sqlite")
	fs.String("logging.level", "", "log level")
	return fs
}

// Load reads configuration from defaults, an optional config file, the
// dotenv file, the environment and finally the flags, later sources winning.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	envFile := ".env"
	if fs != nil {
		if f, err := fs.GetString("env-file"); err == nil && f != "" {
			envFile = f
		}
	}
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	if fs != nil {
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Changed && strings.Contains(f.Name, ".") {
				_ = v.BindPFlag(f.Name, f)
			}
		})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.env", "development")
	v.SetDefault("logging.level", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "taskhub")
	v.SetDefault("database.path", "taskhub.db")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("realtime.serialize_team_events", true)
	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("realtime.max_message_size", 64*1024)
	v.SetDefault("realtime.history_limit", 50)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "taskhub:fanout")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", "587")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.from_name", "Taskhub")

	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.access_key", "")
	v.SetDefault("blob.secret_key", "")
	v.SetDefault("blob.bucket", "team-chat")
	v.SetDefault("blob.use_ssl", false)
	v.SetDefault("blob.public_url", "")
	v.SetDefault("blob.max_size", 10<<20)
}

func bindEnvs(v *viper.Viper) {
	for key, alias := range envAliases {
		_ = v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), alias)
	}
}
