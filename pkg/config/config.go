package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Analysis  AnalysisConfig
	Upload    UploadConfig
	Export    ExportConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type EmbeddingConfig struct {
	// DefaultModel is the multilingual model used for "auto" and as the last fallback.
	DefaultModel string
	// LocalModelPath pins an on-disk word-vector model tried before any named model.
	LocalModelPath string
	LSADimensions  int
	BaseURL        string
	APIKey         string
	TimeoutSec     int
	BatchSize      int
	CacheTTLSec    int
}

type AnalysisConfig struct {
	Workers          int
	TimeoutSec       int
	ReductionMethod  string
	TSNEIterations   int
	TSNELearningRate float64
}

type UploadConfig struct {
	Dir     string
	MaxSize int
}

type ExportConfig struct {
	Dir              string
	MaxAgeSec        int
	SweepIntervalSec int
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (c AnalysisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

func (c ExportConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSec) * time.Second
}

func (c ExportConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bertopic-analysis")

	v.SetEnvPrefix("BERTOPIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 600)
	v.SetDefault("server.bodyLimit", 50*1024*1024)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/bertopic.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("embedding.defaultModel", "lsa")
	v.SetDefault("embedding.localModelPath", "")
	v.SetDefault("embedding.lsaDimensions", 100)
	v.SetDefault("embedding.baseURL", "")
	v.SetDefault("embedding.timeoutSec", 60)
	v.SetDefault("embedding.batchSize", 64)
	v.SetDefault("embedding.cacheTTLSec", 86400)

	v.SetDefault("analysis.workers", runtime.GOMAXPROCS(0))
	v.SetDefault("analysis.timeoutSec", 600)
	v.SetDefault("analysis.reductionMethod", "tsne")
	v.SetDefault("analysis.tsneIterations", 300)
	v.SetDefault("analysis.tsneLearningRate", 200.0)

	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.maxSize", 50*1024*1024)

	v.SetDefault("export.dir", "")
	v.SetDefault("export.maxAgeSec", 3600)
	v.SetDefault("export.sweepIntervalSec", 600)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.maxRequestsPerMinute", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
