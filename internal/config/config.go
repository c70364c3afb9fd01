package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// 主配置结构 - 简化命名
type Config struct {
	App       App     `yaml:"app"`
	Server    Server  `yaml:"server"`
	Database  DB      `yaml:"database"`
	Cache     Cache   `yaml:"cache"`
	Auth      Auth    `yaml:"auth"`
	RateLimit Limit   `yaml:"rate_limit"`
	Cleanup   Cleanup `yaml:"cleanup"`
	GeoIP     GeoIP   `yaml:"geoip"`
	Log       Log     `yaml:"log"`
}

// 应用配置
type App struct {
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Version string `yaml:"version"`
}

// 服务器配置
type Server struct {
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	BaseURL      string `yaml:"base_url"`
}

// 数据库配置，driver 可选 sqlite（默认）或 mysql
type DB struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// 缓存配置（Redis，可选）
type Cache struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// 认证配置，token 为空时写接口不做鉴权
type Auth struct {
	Token string `yaml:"token"`
}

// 限流配置：固定窗口按客户端标识计数，global_rps 为可选的全局兜底
type Limit struct {
	Enabled       bool    `yaml:"enabled"`
	WindowSeconds int     `yaml:"window_seconds"`
	Requests      int64   `yaml:"requests_per_window"`
	Burst         int64   `yaml:"burst"`
	GlobalRPS     float64 `yaml:"global_rps"`
}

// 过期清理配置
type Cleanup struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// GeoIP 配置，db_path 为空时不做地理位置解析
type GeoIP struct {
	DBPath string `yaml:"db_path"`
}

// 日志配置
type Log struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// Default 返回内置默认配置，配置文件缺失时直接可用
func Default() *Config {
	return &Config{
		App:    App{Name: "shortlink", Mode: "development", Version: "1.0.0"},
		Server: Server{Port: 8080, ReadTimeout: 15, WriteTimeout: 15, BaseURL: "http://localhost:8080"},
		Database: DB{
			Driver: "sqlite",
			Path:   "data/shortlink.db",
		},
		RateLimit: Limit{
			Enabled:       true,
			WindowSeconds: 60,
			Requests:      10,
			Burst:         2,
		},
		Cleanup: Cleanup{IntervalSeconds: 60},
		Log:     Log{Path: "./logs/app.log", Level: "debug"},
	}
}

// 加载配置，文件不存在时回退到默认值
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.Cleanup.IntervalSeconds <= 0 {
		cfg.Cleanup.IntervalSeconds = 60
	}

	return cfg, nil
}
