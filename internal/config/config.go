package config

import (
	"flag"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string         `yaml:"env" env-default:"local"`
	HTTPPort    int            `yaml:"http_port" env-default:"8080"`
	PostgresCfg PostgresConfig `yaml:"postgres"`
	RedisCfg    RedisConfig    `yaml:"redis"`
	NatsCfg     NatsConfig     `yaml:"nats"`
	RazorpayCfg RazorpayConfig `yaml:"razorpay"`
	NavFeedCfg  NavFeedConfig  `yaml:"nav_feed"`
	BatchCfg    BatchConfig    `yaml:"batch"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Db       int    `yaml:"db"`
	Password string `yaml:"password"`
}

type NatsConfig struct {
	URL string `yaml:"url" env-default:"nats://localhost:4222"`
}

type RazorpayConfig struct {
	BaseURL       string `yaml:"base_url"`
	KeyId         string `yaml:"key_id" env:"RAZORPAY_KEY_ID"`
	KeySecret     string `yaml:"key_secret" env:"RAZORPAY_KEY_SECRET"`
	TimeoutSec    int    `yaml:"timeout_sec" env-default:"10"`
	WebhookSecret string `yaml:"webhook_secret" env:"RAZORPAY_WEBHOOK_SECRET"`
}

type NavFeedConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Endpoint     string   `yaml:"nav_endpoint"`
	SchemeCodes  []string `yaml:"scheme_codes"`
	PollInterval int      `yaml:"poll_interval_sec" env-default:"300"`
}

type BatchConfig struct {
	// Hour of day (0-23) at which the daily pass runs.
	RunHour int `yaml:"run_hour" env-default:"21"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config file is empty")
	}

	return MustLoadByPath(path)
}

func MustLoadByPath(path string) *Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found " + path)
	}

	var config Config

	if err := cleanenv.ReadConfig(path, &config); err != nil {
		panic("failed to read config " + err.Error())
	}

	return &config
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
