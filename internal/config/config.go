// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
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
	Queue         QueueConfig         `mapstructure:"queue"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Guardrail     GuardrailConfig     `mapstructure:"guardrail"`
	AI            AIConfig            `mapstructure:"ai"`
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

// JWTConfig 存储 JWT 相关的配置。令牌由认证服务签发，本服务只做校验。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// QueueConfig 存储文档摄取任务队列（Redis List）的配置。
type QueueConfig struct {
	Key string `mapstructure:"key"`
	// Reliable 为 true 时使用 processing 列表 + ack，崩溃后任务可被恢复。
	Reliable    bool `mapstructure:"reliable"`
	MaxAttempts int  `mapstructure:"max_attempts"`
}

// WorkerConfig 存储摄取 worker 轮询相关的配置。
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PopTimeout   time.Duration `mapstructure:"pop_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// KafkaConfig 存储 Kafka 相关的配置，用于发布文档状态事件。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。ServerURL 为空时退回本地 PDF 解析。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses        string `mapstructure:"addresses"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	IndexName        string `mapstructure:"index_name"`
	Dimensions       int    `mapstructure:"dimensions"`
	EmbedConcurrency int    `mapstructure:"embed_concurrency"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// UploadConfig 存储上传文件校验与临时目录的配置。
type UploadConfig struct {
	TempDir           string   `mapstructure:"temp_dir"`
	MaxSizeBytes      int64    `mapstructure:"max_size_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ChunkingConfig 存储父子两级切块参数。
type ChunkingConfig struct {
	Parent SplitterConfig `mapstructure:"parent"`
	Child  SplitterConfig `mapstructure:"child"`
}

// SplitterConfig 以 token 数描述一个切块器。
type SplitterConfig struct {
	Size      int `mapstructure:"size"`
	Overlap   int `mapstructure:"overlap"`
	MinLength int `mapstructure:"min_length"`
}

// RetrievalConfig 存储检索相关的配置。
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
	// UserIsolation 为 true 时检索同时按 user_id 过滤。
	UserIsolation bool `mapstructure:"user_isolation"`
	HistorySize   int  `mapstructure:"history_size"`
}

// GuardrailConfig 存储答案落地校验的配置。
type GuardrailConfig struct {
	Threshold       float64 `mapstructure:"threshold"`
	MinAnswerLength int     `mapstructure:"min_answer_length"`
	RefusalPhrase   string  `mapstructure:"refusal_phrase"`
	// FailOpen 为 true 时，Embedding 调用失败视为校验通过（可用性优先）。
	FailOpen bool `mapstructure:"fail_open"`
}

// AIConfig 存储问答流水线的配置。
type AIConfig struct {
	// Timeout 限定生成与上下文向量化两个并行调用的总时长，0 表示不限制。
	Timeout        time.Duration `mapstructure:"timeout"`
	PromptTemplate string        `mapstructure:"prompt_template"`
}

// SetDefaults 为所有可调参数注册默认值。
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("queue.key", "docweave:ingestion")
	v.SetDefault("queue.reliable", false)
	v.SetDefault("queue.max_attempts", 3)

	v.SetDefault("worker.poll_interval", time.Second)
	v.SetDefault("worker.pop_timeout", 2*time.Second)
	v.SetDefault("worker.concurrency", 1)

	v.SetDefault("kafka.topic", "docweave.document-status")
	v.SetDefault("tika.timeout", 5*time.Minute)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("elasticsearch.index_name", "docweave_child_chunks")
	v.SetDefault("elasticsearch.dimensions", 1024)
	v.SetDefault("elasticsearch.embed_concurrency", 4)

	v.SetDefault("minio.bucket_name", "docweave")

	v.SetDefault("upload.temp_dir", "./tmp/uploads")
	v.SetDefault("upload.max_size_bytes", 50*1024*1024)
	v.SetDefault("upload.allowed_extensions", []string{".pdf"})

	v.SetDefault("chunking.parent.size", 800)
	v.SetDefault("chunking.parent.overlap", 100)
	v.SetDefault("chunking.parent.min_length", 10)
	v.SetDefault("chunking.child.size", 300)
	v.SetDefault("chunking.child.overlap", 50)
	v.SetDefault("chunking.child.min_length", 10)

	v.SetDefault("retrieval.top_k", 2)
	v.SetDefault("retrieval.user_isolation", true)
	v.SetDefault("retrieval.history_size", 6)

	v.SetDefault("guardrail.threshold", 0.4)
	v.SetDefault("guardrail.min_answer_length", 5)
	v.SetDefault("guardrail.refusal_phrase", DefaultRefusalPhrase)
	v.SetDefault("guardrail.fail_open", true)

	v.SetDefault("ai.timeout", 60*time.Second)
}

// DefaultRefusalPhrase 是上下文无法回答问题时模型必须原样输出的句子。
const DefaultRefusalPhrase = "提供的文档中找不到相关内容。"

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取并解析配置文件，不修改全局变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}
