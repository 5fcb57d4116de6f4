package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Attendance AttendanceConfig `mapstructure:"attendance"`
	Events     EventsConfig     `mapstructure:"events"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeout int      `mapstructure:"write_timeout_seconds"`
	IdleTimeout  int      `mapstructure:"idle_timeout_seconds"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
}

type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	AccessTokenMinutes int    `mapstructure:"access_token_minutes"`
	RefreshTokenHours  int    `mapstructure:"refresh_token_hours"`
}

// AttendanceConfig controls how "today" is computed and the default page sizes
// for self history and teacher-viewing-student history.
type AttendanceConfig struct {
	Timezone        string `mapstructure:"timezone"`
	SelfPageSize    int    `mapstructure:"self_page_size"`
	StudentPageSize int    `mapstructure:"student_page_size"`
	MaxPageSize     int    `mapstructure:"max_page_size"`
}

type EventsConfig struct {
	Driver string      `mapstructure:"driver"` // none, nats, kafka
	NATS   NATSConfig  `mapstructure:"nats"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "attendance")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("auth.access_token_minutes", 15)
	v.SetDefault("auth.refresh_token_hours", 168)
	v.SetDefault("attendance.timezone", "UTC")
	v.SetDefault("attendance.self_page_size", 10)
	v.SetDefault("attendance.student_page_size", 20)
	v.SetDefault("attendance.max_page_size", 100)
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.nats.subject", "attendance.events")
	v.SetDefault("events.kafka.topic", "attendance-events")
	v.SetDefault("telemetry.otlp_endpoint", "otel-collector.infra.svc.cluster.local:4317")
	v.SetDefault("log.level", "info")
}

func Load() (*Config, error) {
	// Get environment from ENV, default to "local"
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	v.AddConfigPath("/configs")   // Kubernetes mount
	v.AddConfigPath("./configs")  // repository root
	v.AddConfigPath("../configs") // IDE from cmd/

	// Config file is optional - continue with defaults and ENV variables
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables take precedence over the config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Env = env

	return &config, nil
}
