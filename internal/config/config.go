package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jengzang/trip-recorder-go/internal/pipeline"
)

// Config 应用配置
type Config struct {
	Port      string          `yaml:"port"`
	DBPath    string          `yaml:"db_path"`
	ModelDir  string          `yaml:"model_dir"`
	RateLimit int             `yaml:"rate_limit"` // 每分钟每个 IP 的写请求数
	Pipeline  pipeline.Config `yaml:"pipeline"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Port:      ":8080",
		DBPath:    "./data/trips/trips.db",
		ModelDir:  "./data/model",
		RateLimit: 60,
		Pipeline:  pipeline.DefaultConfig(),
	}
}

// Load 加载配置: 默认值 -> TRIP_CONFIG_FILE (YAML) -> 环境变量
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := Default()
	if path := os.Getenv("TRIP_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	p := &c.Pipeline
	setString(&c.Port, "PORT")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.ModelDir, "MODEL_DIR")

	// 第一个解析失败的变量即返回
	for _, err := range []error{
		setInt(&c.RateLimit, "RATE_LIMIT"),
		setInt(&p.Batcher.Capacity, "BATCH_CAPACITY"),
		setDuration(&p.Batcher.MaxDeferral, "BATCH_MAX_DEFERRAL"),
		setFloat(&p.Batcher.DeferralDistance, "BATCH_DEFERRAL_DISTANCE"),
		setFloat(&p.Windower.MinFillRatio, "WINDOW_MIN_FILL_RATIO"),
		setDuration(&p.Windower.MaxGap, "WINDOW_MAX_GAP"),
		setFloat(&p.Trip.MinMotionSpeed, "TRIP_MIN_MOTION_SPEED"),
		setDuration(&p.Trip.StillnessTimeout, "TRIP_STILLNESS_TIMEOUT"),
		setDuration(&p.Trip.SlowTimeout, "TRIP_SLOW_TIMEOUT"),
		setDuration(&p.Trip.GracePeriod, "TRIP_GRACE_PERIOD"),
		setDuration(&p.Trip.MinTripDuration, "TRIP_MIN_DURATION"),
		setFloat(&p.Trip.Weighting.HalfLife, "TRIP_RECENCY_HALF_LIFE"),
		setDuration(&p.BackgroundBudget, "BACKGROUND_BUDGET"),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
