package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	AWS struct {
		Region   string
		Profile  string
		Endpoint string
	}
	Secrets struct {
		Enabled  bool
		Function string
	}
	Database struct {
		Driver string
		Table  string
		Path   string
	}
	Broker struct {
		URL   string
		Queue string
	}
	Events struct {
		Buffer         int
		PublishTimeout time.Duration
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("USERSVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8084")
	v.SetDefault("aws.region", "us-east-2")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("secrets.enabled", true)
	v.SetDefault("secrets.function", "fetchSecretsFunction_gr8")
	v.SetDefault("database.driver", "dynamodb")
	v.SetDefault("database.table", "Users_gr8")
	v.SetDefault("database.path", "data/users.db")
	v.SetDefault("broker.url", "amqp://3.136.72.14:5672/")
	v.SetDefault("broker.queue", "user-events")
	v.SetDefault("events.buffer", 64)
	v.SetDefault("events.publishtimeout", 5*time.Second)
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch cfg.Database.Driver {
	case "dynamodb", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Events.Buffer <= 0 {
		return Config{}, fmt.Errorf("events buffer must be positive, got %d", cfg.Events.Buffer)
	}

	return cfg, nil
}

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

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
