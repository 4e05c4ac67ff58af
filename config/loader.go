// =============================================================================
// 📦 DocTranslate 配置加载器
// =============================================================================
// 统一配置加载，支持 .env + YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DOCTRANSLATE").
//	    Load()
//
// 配置优先级: 默认值 → .env → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "DOCTRANSLATE"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 DocTranslate 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Translation 翻译流水线配置
	Translation TranslationConfig `yaml:"translation" env:"TRANSLATION"`

	// LLM 后端配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Redis 翻译缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Task 异步任务配置
	Task TaskConfig `yaml:"task" env:"TASK"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT" validate:"gt=0,lt=65536"`
	// Metrics 端口, 0 表示与 HTTP 共用
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT" validate:"gte=0,lt=65536"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" validate:"gte=0"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" validate:"gte=0"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
	// 每秒请求数限制, 0 表示不限
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" validate:"gte=0"`
	// 突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" validate:"gte=0"`
	// 允许的 CORS 来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// API Key 列表, 为空时不校验
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// JWT HMAC 密钥, 为空时不启用 JWT 认证
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" validate:"omitempty,min=32"`
}

// TranslationConfig 翻译流水线配置
type TranslationConfig struct {
	// 模型名称
	Model string `yaml:"model" env:"MODEL" validate:"required"`
	// 温度参数
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=2"`
	// 默认目标语言
	DefaultLanguage string `yaml:"default_language" env:"DEFAULT_LANGUAGE" validate:"required"`
	// 单个分块 token 上限
	ChunkTokenLimit int `yaml:"chunk_token_limit" env:"CHUNK_TOKEN_LIMIT" validate:"gt=0"`
	// 模型上下文上限
	ModelMaxTokens int `yaml:"model_max_tokens" env:"MODEL_MAX_TOKENS" validate:"gtefield=ChunkTokenLimit"`
	// 分组 token 预算占模型上限的比例
	GroupTokenRatio float64 `yaml:"group_token_ratio" env:"GROUP_TOKEN_RATIO" validate:"gt=0,lte=1"`
	// 分组最大分块数
	MaxGroupSize int `yaml:"max_group_size" env:"MAX_GROUP_SIZE" validate:"gtefield=MinGroupSize"`
	// 分组最小分块数
	MinGroupSize int `yaml:"min_group_size" env:"MIN_GROUP_SIZE" validate:"gt=0"`
	// 并行分组数
	MaxParallelGroups int `yaml:"max_parallel_groups" env:"MAX_PARALLEL_GROUPS" validate:"gt=0"`
	// 单次后端调用超时
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" validate:"gte=0"`
	// 单次请求允许的最大 token 数, 0 表示不限
	MaxContentTokens int `yaml:"max_content_tokens" env:"MAX_CONTENT_TOKENS" validate:"gte=0"`
	// 翻译结果缓存时长, 0 表示不缓存
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" validate:"gte=0"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（OpenAI 兼容）
	BaseURL string `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	// HTTP 客户端超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
	// 每秒请求数, 0 表示不限
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND" validate:"gte=0"`
	// 突发容量
	Burst int `yaml:"burst" env:"BURST" validate:"gte=0"`
	// 跳过证书校验, 仅用于自签名证书的自建推理服务
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用翻译缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR" validate:"required_if=Enabled true"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB" validate:"gte=0"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE" validate:"gte=0"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS" validate:"gte=0"`
	// 使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// TaskConfig 异步任务配置
type TaskConfig struct {
	// 同时运行的翻译任务数
	MaxConcurrent int64 `yaml:"max_concurrent" env:"MAX_CONCURRENT" validate:"gte=0"`
	// 单个任务总超时, 0 表示不限
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gte=0"`
	// 终态任务保留时长, 0 表示不清理
	Retention time.Duration `yaml:"retention" env:"RETENTION" validate:"gte=0"`
	// 清理任务 cron 表达式
	CleanupSchedule string `yaml:"cleanup_schedule" env:"CLEANUP_SCHEDULE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS" validate:"min=1"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT" validate:"required_if=Enabled true"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" validate:"required"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"gte=0,lte=1"`
	// 以明文 gRPC 连接采集器, 采集器在本机或 sidecar 时使用
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 指标导出周期
	MetricInterval time.Duration `yaml:"metric_interval" env:"METRIC_INTERVAL" validate:"gte=0"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	envFiles   []string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotEnv 指定需要预先加载的 .env 文件, 文件不存在时忽略.
// 已存在的环境变量不会被覆盖.
func (l *Loader) WithDotEnv(files ...string) *Loader {
	l.envFiles = append(l.envFiles, files...)
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → .env → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadDotEnv() error {
	for _, f := range l.envFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 先应用兼容的旧变量名, 再应用带前缀的变量
func (l *Loader) loadFromEnv(cfg *Config) error {
	if err := applyLegacyEnv(cfg); err != nil {
		return err
	}
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// legacyEnv 不带前缀的旧变量名
var legacyEnv = []struct {
	key   string
	field func(*Config) any
}{
	{"OPENAI_API_KEY", func(c *Config) any { return &c.LLM.APIKey }},
	{"OPENAI_API_BASE", func(c *Config) any { return &c.LLM.BaseURL }},
	{"DEFAULT_MODEL", func(c *Config) any { return &c.Translation.Model }},
	{"MAX_PARALLEL_GROUPS", func(c *Config) any { return &c.Translation.MaxParallelGroups }},
	{"LOG_LEVEL", func(c *Config) any { return &c.Log.Level }},
}

func applyLegacyEnv(cfg *Config) error {
	for _, e := range legacyEnv {
		value := os.Getenv(e.key)
		if value == "" {
			continue
		}
		if err := setFieldValue(reflect.ValueOf(e.field(cfg)).Elem(), value); err != nil {
			return fmt.Errorf("failed to set %s: %w", e.key, err)
		}
	}
	if debug, _ := strconv.ParseBool(os.Getenv("DEBUG_MODE")); debug {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验 validate tag 约束
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config validation errors: %s", strings.Join(msgs, "; "))
}
