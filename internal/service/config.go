// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

// InstanceConfig 单个品种的结构分析参数
type InstanceConfig struct {
	Symbol   string
	Interval string // K 线周期，如 "1m", "5m", "1h"
	Replay   bool   // 启动时先重放存储中已有的 Bar
}

type Config struct {
	Log       LogConfig                 `mapstructure:"Log"`
	Exchange  ExchangeConfig            `mapstructure:"Exchange"`
	Store     StoreConfig               `mapstructure:"Store"`
	Pipeline  PipelineConfig            `mapstructure:"Pipeline"`
	Instances map[string]InstanceConfig `mapstructure:"Instances"`
}

type LogConfig struct {
	Level string
}

// ExchangeConfig 定义了交易所的连接信息 (只读取公开成交数据)
type ExchangeConfig struct {
	Name  string
	WSURL string
}

// StoreConfig 原始 Bar 存储
type StoreConfig struct {
	Driver     string // memory | sqlite
	SQLitePath string
}

// PipelineConfig 结构流水线参数
type PipelineConfig struct {
	PenMinDistance int
	EventBuffer    int // 事件订阅通道的缓冲大小
}

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// DefaultOkxWSURL Okx 公共频道地址
const DefaultOkxWSURL = "wss://ws.okx.com:8443/ws/v5/public"

// SeriesKey 存储中该实例的序列名，周期统一格式化，"60s" 与 "1m" 对应同一序列
func (i InstanceConfig) SeriesKey() (string, error) {
	d, err := ParseIntervalDuration(i.Interval)
	if err != nil {
		return "", err
	}
	return i.Symbol + "-" + FormatInterval(d), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Exchange.Name", "okx")
	v.SetDefault("Exchange.WSURL", DefaultOkxWSURL)
	v.SetDefault("Store.Driver", StoreMemory)
	v.SetDefault("Store.SQLitePath", "data/bars.db")
	v.SetDefault("Pipeline.PenMinDistance", 4)
	v.SetDefault("Pipeline.EventBuffer", 256)
}

// LoadConfig 读取并解析 configPath 目录下的 config.yaml
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)
	setDefaults(v)

	// 查找并读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file not found in %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// 将配置绑定到结构体
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	for name, inst := range cfg.Instances {
		if inst.Interval == "" {
			inst.Interval = "1m"
			cfg.Instances[name] = inst
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 检查必填项和取值范围
func (c *Config) Validate() error {
	if c.Exchange.WSURL == "" {
		return errors.New("Exchange.WSURL is required")
	}
	u, err := url.Parse(c.Exchange.WSURL)
	if err != nil {
		return fmt.Errorf("Exchange.WSURL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("Exchange.WSURL must use ws or wss, got %q", c.Exchange.WSURL)
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("Store.SQLitePath is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported Store.Driver %q", c.Store.Driver)
	}
	if c.Pipeline.PenMinDistance < 1 {
		return fmt.Errorf("Pipeline.PenMinDistance must be positive, got %d", c.Pipeline.PenMinDistance)
	}
	if c.Pipeline.EventBuffer < 0 {
		return fmt.Errorf("Pipeline.EventBuffer must not be negative, got %d", c.Pipeline.EventBuffer)
	}
	if len(c.Instances) == 0 {
		return errors.New("at least one instance is required")
	}
	for name, inst := range c.Instances {
		if inst.Symbol == "" {
			return fmt.Errorf("instance %s: Symbol is required", name)
		}
		if _, err := ParseIntervalDuration(inst.Interval); err != nil {
			return fmt.Errorf("instance %s: %w", name, err)
		}
	}
	return nil
}
