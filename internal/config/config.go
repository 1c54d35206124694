package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	xerrors "github.com/NikhilRaikwar/Nexis/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config 描述 Nexis 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Chains  ChainsConfig  `yaml:"chains"`
	Price   PriceConfig   `yaml:"price"`
	Events  EventsConfig  `yaml:"events"`
	Records RecordsConfig `yaml:"records"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig 控制 API 服务的监听地址与请求超时。
type ServerConfig struct {
	Address        string        `yaml:"address"`
	MetricsAddress string        `yaml:"metrics_address"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ModelConfig 描述调用 OpenAI 兼容接口所需的参数。API Key 只从
// 环境变量读取，不允许写在配置文件里。
type ModelConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`

	apiKey string
}

// APIKey 返回启动时从环境变量解析到的密钥。
func (m ModelConfig) APIKey() string {
	return m.apiKey
}

// ChainsConfig 指向链注册表与代币目录的配置文件，留空时使用内置默认。
type ChainsConfig struct {
	RegistryPath string `yaml:"registry_path"`
	TokensPath   string `yaml:"tokens_path"`
}

// PriceConfig 描述价格查询的上游与缓存。
type PriceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Currency    string        `yaml:"currency"`
	CacheDriver string        `yaml:"cache_driver"`
	RedisAddr   string        `yaml:"redis_addr"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// EventsConfig 选择事件发布后端：memory、redis 或 rabbitmq。
type EventsConfig struct {
	Driver    string `yaml:"driver"`
	RedisAddr string `yaml:"redis_addr"`
	AMQPURL   string `yaml:"amqp_url"`
	Queue     string `yaml:"queue"`
}

// RecordsConfig 选择转账记录的持久化后端：memory、mysql 或 none。
type RecordsConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Path   string `yaml:"path"`
}

// RuntimeConfig 放置对话循环的通用参数。
type RuntimeConfig struct {
	MaxRounds  int           `yaml:"max_rounds"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	DataDir    string        `yaml:"data_dir"`
}

// LoggingConfig 控制结构化日志输出。AuditPath 非空时开启转账审计日志。
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AuditPath string `yaml:"audit_path"`
}

// Load 解析 YAML 配置文件并套用默认值。路径为空时尝试环境变量
// NEXIS_CONFIG，仍为空则返回纯默认配置。调用前会尽力加载 .env。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if strings.TrimSpace(path) == "" {
		path = os.Getenv("NEXIS_CONFIG")
	}

	cfg := &Config{}
	baseDir := "."
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "读取配置文件失败")
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析配置失败")
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyDefaults(baseDir)

	cfg.Model.apiKey = strings.TrimSpace(os.Getenv(cfg.Model.APIKeyEnv))
	if cfg.Model.apiKey == "" {
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "缺少模型密钥，请设置环境变量 %s", cfg.Model.APIKeyEnv)
	}

	return cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}

	if c.Model.BaseURL == "" {
		c.Model.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model.Model == "" {
		c.Model.Model = "gpt-4o-mini"
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model.Timeout <= 0 {
		c.Model.Timeout = 60 * time.Second
	}

	if c.Chains.RegistryPath != "" && !filepath.IsAbs(c.Chains.RegistryPath) {
		c.Chains.RegistryPath = filepath.Join(baseDir, c.Chains.RegistryPath)
	}
	if c.Chains.TokensPath != "" && !filepath.IsAbs(c.Chains.TokensPath) {
		c.Chains.TokensPath = filepath.Join(baseDir, c.Chains.TokensPath)
	}

	if c.Price.BaseURL == "" {
		c.Price.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Price.Currency == "" {
		c.Price.Currency = "usd"
	}
	if c.Price.CacheDriver == "" {
		c.Price.CacheDriver = "memory"
	}
	if c.Price.CacheTTL <= 0 {
		c.Price.CacheTTL = time.Minute
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Records.Driver == "" {
		c.Records.Driver = "memory"
	}

	if c.Runtime.MaxRounds <= 0 {
		c.Runtime.MaxRounds = 10
	}
	if c.Runtime.SessionTTL <= 0 {
		c.Runtime.SessionTTL = 30 * time.Minute
	}
	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
