// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Entitlements  EntitlementsConfig  `mapstructure:"entitlements"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	RabbitMQ      RabbitMQConfig      `mapstructure:"rabbitmq"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Weather       WeatherConfig       `mapstructure:"weather"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LLMConfig 存储大语言模型相关的配置。
// Provider 取值 openai | ark；Models 把对外暴露的模型变体映射到供应商的模型名。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]string   `mapstructure:"models"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ChatConfig 控制一次对话回合的编排行为。
type ChatConfig struct {
	MaxSteps           int           `mapstructure:"max_steps"`
	MaxDuration        time.Duration `mapstructure:"max_duration"`
	CancelOnDisconnect bool          `mapstructure:"cancel_on_disconnect"`
	DefaultModel       string        `mapstructure:"default_model"`
	ReasoningModel     string        `mapstructure:"reasoning_model"`
	SystemPrompt       string        `mapstructure:"system_prompt"`
	ResumeGrace        time.Duration `mapstructure:"resume_grace"`
	MaxTextLength      int           `mapstructure:"max_text_length"`
}

// EntitlementsConfig 按用户类型配置配额与可用模型。
type EntitlementsConfig struct {
	WindowHours int                    `mapstructure:"window_hours"`
	Types       map[string]Entitlement `mapstructure:"types"`
}

// Entitlement 是某一用户类型的权益。
type Entitlement struct {
	MaxMessagesPerDay int      `mapstructure:"max_messages_per_day"`
	AvailableModels   []string `mapstructure:"available_models"`
}

// StreamConfig 配置可恢复流的中继。
type StreamConfig struct {
	RelayEnabled bool          `mapstructure:"relay_enabled"`
	Retention    time.Duration `mapstructure:"retention"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
}

// NotifyConfig 配置回合结束后的通知投递。Driver 取值 webhook | kafka | rabbitmq | none。
type NotifyConfig struct {
	Driver     string        `mapstructure:"driver"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// RabbitMQConfig 存储 RabbitMQ 相关的配置。
type RabbitMQConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	PublicURL       string `mapstructure:"public_url"`
}

// WeatherConfig 配置天气工具使用的 Open-Meteo 兼容接口。
type WeatherConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults 注册所有配置项的默认值。
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("chat.max_steps", 5)
	v.SetDefault("chat.max_duration", 60*time.Second)
	v.SetDefault("chat.cancel_on_disconnect", false)
	v.SetDefault("chat.default_model", "chat-model")
	v.SetDefault("chat.reasoning_model", "chat-model-reasoning")
	v.SetDefault("chat.resume_grace", 15*time.Second)
	v.SetDefault("chat.max_text_length", 2000)
	v.SetDefault("entitlements.window_hours", 24)
	v.SetDefault("entitlements.types.guest.max_messages_per_day", 20)
	v.SetDefault("entitlements.types.guest.available_models", []string{"chat-model", "chat-model-reasoning"})
	v.SetDefault("entitlements.types.regular.max_messages_per_day", 100)
	v.SetDefault("entitlements.types.regular.available_models", []string{"chat-model", "chat-model-reasoning"})
	v.SetDefault("stream.relay_enabled", true)
	v.SetDefault("stream.retention", 10*time.Minute)
	v.SetDefault("stream.block_timeout", 5*time.Second)
	v.SetDefault("stream.heartbeat", 15*time.Second)
	v.SetDefault("notify.driver", "none")
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("kafka.group_id", "ride-chat-turn-indexer")
	v.SetDefault("elasticsearch.index_name", "chat_turns")
	v.SetDefault("weather.base_url", "https://api.open-meteo.com")
	v.SetDefault("weather.timeout", 10*time.Second)
}

// Load 从指定路径读取 YAML 配置，环境变量（如 CHAT_MAX_STEPS）可覆盖文件中的值。
func Load(configPath string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，并写入全局变量 Conf。失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// EntitlementFor 返回用户类型对应的权益，未知类型按 guest 处理。
func (c EntitlementsConfig) EntitlementFor(userType string) Entitlement {
	if e, ok := c.Types[userType]; ok {
		return e
	}
	return c.Types["guest"]
}

// Window 返回配额统计窗口。
func (c EntitlementsConfig) Window() time.Duration {
	if c.WindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.WindowHours) * time.Hour
}
