package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string        `yaml:"env" env:"ENV" env-default:"local"`
	DB         DB            `yaml:"db"`
	HTTPServer HTTPServer    `yaml:"http_server"`
	TokenTTL   time.Duration `yaml:"token_ttl" env-default:"12h"`
	Secret     string        `yaml:"secret" env:"JWT_SECRET"`
	Recording  Recording     `yaml:"recording"`
	Scan       Scan          `yaml:"scan"`
	Feed       Feed          `yaml:"feed"`
}

type DB struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	Username string `yaml:"username" env:"POSTGRES_USER" env-default:"postgres"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"station_recorder"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
	Password string `yaml:"-"`
}

// HTTPServer timeouts. Timeout bounds reading a request, WriteTimeout
// writing the response. Recording downloads and exports are not bound by
// WriteTimeout.
type HTTPServer struct {
	Address      string        `yaml:"address" env-default:"localhost:8082"`
	Timeout      time.Duration `yaml:"timeout" env-default:"4s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"15s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Recording configures the capture process supervisor.
type Recording struct {
	Root          string        `yaml:"root" env:"RECORDING_ROOT" env-default:"./videos"`
	URLPrefix     string        `yaml:"url_prefix" env-default:"/videos"`
	FFmpegPath    string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-default:"ffmpeg"`
	Extension     string        `yaml:"extension" env-default:"mp4"`
	GracePeriod   time.Duration `yaml:"grace_period" env-default:"1800ms"`
	KillWait      time.Duration `yaml:"kill_wait" env-default:"2s"`
	CheckStream   bool          `yaml:"check_stream" env-default:"false"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"0s"`
}

// Scan holds the classifier policy knobs.
type Scan struct {
	OrderPattern        string `yaml:"order_pattern" env-default:"^\\d{6,}$"`
	DifferentCodePolicy string `yaml:"different_code_policy" env-default:"switch"`
}

// Feed configures the automated vision feed. Every "{source}" element of
// DetectorArgs is replaced with the camera stream URL.
type Feed struct {
	Enabled         bool          `yaml:"enabled" env:"FEED_ENABLED" env-default:"false"`
	DetectorPath    string        `yaml:"detector_path" env-default:"zbarcam"`
	DetectorArgs    []string      `yaml:"detector_args"`
	Debounce        time.Duration `yaml:"debounce" env-default:"2s"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env-default:"10s"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	// .env is optional, the process environment wins anyway
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

// fetchConfigPath fetches config path from command line flag or environment variable.
// Priority: flag > env > default.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
