package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	CopernicusBaseURL     string
	CopernicusCredentials string
	DownloadRoot          string

	DBDriver string
	DBHost   string
	DBPort   string
	DBUser   string
	DBPass   string
	DBName   string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	JobLockTTL    time.Duration

	RabbitMQURL      string
	RabbitMQHost     string
	RabbitMQPort     string
	RabbitMQUser     string
	RabbitMQPass     string
	RabbitMQVhost    string
	RabbitMQPrefetch int

	DownloadWorkerConcurrency int
	DownloadRate              float64
	DownloadBurst             int
	DownloadRetryMax          int
	DownloadRetryDelays       []time.Duration
	DownloadConnectTimeout    time.Duration
	DownloadReadTimeout       time.Duration
	DownloadHTTPTimeout       time.Duration

	HTTPAddr          string
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPTLS      bool
	SMTPStartTLS bool
	AlertEmail   string

	LogLevel  string
	LogFormat string
}

var AppConfig Config

var defaults = map[string]interface{}{
	"copernicus_base_url":         "https://scihub.copernicus.eu/dhus/odata/v1",
	"copernicus_credentials":      "",
	"download_root":               "/data",
	"db_driver":                   "postgres",
	"db_host":                     "localhost",
	"db_port":                     "5432",
	"db_user":                     "postgres",
	"db_pass":                     "postgres",
	"db_name":                     "satellite",
	"redis_host":                  "",
	"redis_port":                  "6379",
	"redis_password":              "",
	"redis_db":                    0,
	"job_lock_ttl":                2 * time.Hour,
	"rabbitmq_url":                "",
	"rabbitmq_host":               "localhost",
	"rabbitmq_port":               "5672",
	"rabbitmq_user":               "guest",
	"rabbitmq_password":           "guest",
	"rabbitmq_vhost":              "/",
	"rabbitmq_prefetch":           8,
	"download_worker_concurrency": 4,
	"download_rate":               2.0,
	"download_burst":              4,
	"download_retry_max":          3,
	"download_retry_delays":       "2s",
	"download_connect_timeout":    30 * time.Second,
	"download_read_timeout":       60 * time.Second,
	"download_http_timeout":       time.Duration(0),
	"http_addr":                   ":8000",
	"jwt_secret":                  "",
	"admin_user":                  "admin",
	"admin_password_hash":         "",
	"smtp_host":                   "",
	"smtp_port":                   "",
	"smtp_user":                   "",
	"smtp_pass":                   "",
	"smtp_from":                   "",
	"smtp_tls":                    false,
	"smtp_starttls":               false,
	"alert_email":                 "",
	"log_level":                   "info",
	"log_format":                  "text",
}

// newViper builds a viper instance reading defaults, an optional config file and the environment.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	if path := strings.TrimSpace(os.Getenv("SENTINEL_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

func parseDurationList(raw string, defaultValue []time.Duration) []time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Load reads the configuration without touching AppConfig.
func Load() (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	rabbitHost := v.GetString("rabbitmq_host")
	rabbitPort := v.GetString("rabbitmq_port")
	rabbitUser := v.GetString("rabbitmq_user")
	rabbitPass := v.GetString("rabbitmq_password")
	rabbitVhost := v.GetString("rabbitmq_vhost")
	rabbitURL := v.GetString("rabbitmq_url")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(rabbitUser),
			url.PathEscape(rabbitPass),
			rabbitHost,
			rabbitPort,
			url.PathEscape(rabbitVhost),
		)
	}
	return Config{
		CopernicusBaseURL:         strings.TrimRight(v.GetString("copernicus_base_url"), "/"),
		CopernicusCredentials:     v.GetString("copernicus_credentials"),
		DownloadRoot:              v.GetString("download_root"),
		DBDriver:                  strings.ToLower(v.GetString("db_driver")),
		DBHost:                    v.GetString("db_host"),
		DBPort:                    v.GetString("db_port"),
		DBUser:                    v.GetString("db_user"),
		DBPass:                    v.GetString("db_pass"),
		DBName:                    v.GetString("db_name"),
		RedisHost:                 v.GetString("redis_host"),
		RedisPort:                 v.GetString("redis_port"),
		RedisPassword:             v.GetString("redis_password"),
		RedisDB:                   v.GetInt("redis_db"),
		JobLockTTL:                v.GetDuration("job_lock_ttl"),
		RabbitMQURL:               rabbitURL,
		RabbitMQHost:              rabbitHost,
		RabbitMQPort:              rabbitPort,
		RabbitMQUser:              rabbitUser,
		RabbitMQPass:              rabbitPass,
		RabbitMQVhost:             rabbitVhost,
		RabbitMQPrefetch:          v.GetInt("rabbitmq_prefetch"),
		DownloadWorkerConcurrency: v.GetInt("download_worker_concurrency"),
		DownloadRate:              v.GetFloat64("download_rate"),
		DownloadBurst:             v.GetInt("download_burst"),
		DownloadRetryMax:          v.GetInt("download_retry_max"),
		DownloadRetryDelays:       parseDurationList(v.GetString("download_retry_delays"), []time.Duration{2 * time.Second}),
		DownloadConnectTimeout:    v.GetDuration("download_connect_timeout"),
		DownloadReadTimeout:       v.GetDuration("download_read_timeout"),
		DownloadHTTPTimeout:       v.GetDuration("download_http_timeout"),
		HTTPAddr:                  v.GetString("http_addr"),
		JWTSecret:                 v.GetString("jwt_secret"),
		AdminUser:                 v.GetString("admin_user"),
		AdminPasswordHash:         v.GetString("admin_password_hash"),
		SMTPHost:                  v.GetString("smtp_host"),
		SMTPPort:                  v.GetString("smtp_port"),
		SMTPUser:                  v.GetString("smtp_user"),
		SMTPPass:                  v.GetString("smtp_pass"),
		SMTPFrom:                  v.GetString("smtp_from"),
		SMTPTLS:                   v.GetBool("smtp_tls"),
		SMTPStartTLS:              v.GetBool("smtp_starttls"),
		AlertEmail:                v.GetString("alert_email"),
		LogLevel:                  v.GetString("log_level"),
		LogFormat:                 v.GetString("log_format"),
	}, nil
}

// InitConfig loads configuration into AppConfig and configures logging.
func InitConfig() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	AppConfig = cfg
	InitLogging(cfg.LogLevel, cfg.LogFormat)
}

// InitLogging applies level and formatter to the global logger.
func InitLogging(level, format string) {
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
