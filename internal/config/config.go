package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Logging      LoggingConfig
	Dataset      DatasetConfig
	VAD          VADConfig
	Segmentation SegmentationConfig
	Alignment    AlignmentConfig
	Transcript   TranscriptConfig
	Media        MediaConfig
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Storage      StorageConfig
	Queue        QueueConfig
	Metrics      MetricsConfig
	Tracing      TracingConfig
	Worker       WorkerConfig
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// DatasetConfig holds container layout settings
type DatasetConfig struct {
	Dir              string // local directory of containers served by the API
	AudioSampleRate  int
	AudioChunkLength int
	VideoChunkBytes  int
	VideoShortSide   int
	FrameCodec       string // zstd or jpeg
	JPEGQuality      int
	BusyTimeout      time.Duration
}

// VADConfig holds voice activity detection settings
type VADConfig struct {
	Classifier      string // energy or silero
	FrameDuration   time.Duration
	PaddingDuration time.Duration
	TriggerRatio    float64
	EnergyThreshold float64
	SileroModelPath string
	SileroThreshold float64
}

// SegmentationConfig holds the thresholds for non-subtitled speech
type SegmentationConfig struct {
	MergeSubtitles time.Duration
	MergeVoiced    time.Duration
	Trim           time.Duration
	Coverage       float64
}

// AlignmentConfig holds cross-stream query settings
type AlignmentConfig struct {
	MinimumGap  float64 // seconds
	MaxDuration float64 // seconds, 0 disables capping
}

// TranscriptConfig holds transcription settings
type TranscriptConfig struct {
	RequestsPerMinute int
	MergeGap          float64 // seconds between words merged into one cue
}

// MediaConfig holds ffmpeg settings
type MediaConfig struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64 // requests per second per client, 0 disables
	RateBurst       int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	LockTTL  time.Duration
	CacheTTL time.Duration
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	Vhost      string
	MaxRetries int
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger settings
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	AgentHost    string
	AgentPort    int
	SamplerType  string
	SamplerParam float64
	LogSpans     bool
}

// WorkerConfig holds job worker settings
type WorkerConfig struct {
	Concurrency int
	WorkDir     string
	JobTimeout  time.Duration
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks values the defaults cannot repair
func (c *Config) Validate() error {
	if c.Dataset.AudioSampleRate < 1 {
		return fmt.Errorf("invalid config: dataset.audioSampleRate must be positive, got %d", c.Dataset.AudioSampleRate)
	}
	switch c.Dataset.FrameCodec {
	case "zstd", "jpeg":
	default:
		return fmt.Errorf("invalid config: unknown dataset.frameCodec %q", c.Dataset.FrameCodec)
	}
	switch c.VAD.Classifier {
	case "energy", "silero":
	default:
		return fmt.Errorf("invalid config: unknown vad.classifier %q", c.VAD.Classifier)
	}
	if c.VAD.TriggerRatio <= 0 || c.VAD.TriggerRatio > 1 {
		return fmt.Errorf("invalid config: vad.triggerRatio must be in (0, 1], got %v", c.VAD.TriggerRatio)
	}
	if c.Segmentation.Coverage <= 0 || c.Segmentation.Coverage > 1 {
		return fmt.Errorf("invalid config: segmentation.coverage must be in (0, 1], got %v", c.Segmentation.Coverage)
	}
	if c.Alignment.MaxDuration < 0 {
		return fmt.Errorf("invalid config: alignment.maxDuration must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Dataset defaults
	v.SetDefault("dataset.dir", "./datasets")
	v.SetDefault("dataset.audioSampleRate", 16000)
	v.SetDefault("dataset.audioChunkLength", 65536)
	v.SetDefault("dataset.videoChunkBytes", 1<<20) // 1MB
	v.SetDefault("dataset.videoShortSide", 256)
	v.SetDefault("dataset.frameCodec", "zstd")
	v.SetDefault("dataset.jpegQuality", 90)
	v.SetDefault("dataset.busyTimeout", "5s")

	// VAD defaults
	v.SetDefault("vad.classifier", "energy")
	v.SetDefault("vad.frameDuration", "30ms")
	v.SetDefault("vad.paddingDuration", "100ms")
	v.SetDefault("vad.triggerRatio", 0.9)
	v.SetDefault("vad.energyThreshold", 500)
	v.SetDefault("vad.sileroModelPath", "")
	v.SetDefault("vad.sileroThreshold", 0.5)

	// Segmentation defaults
	v.SetDefault("segmentation.mergeSubtitles", "300ms")
	v.SetDefault("segmentation.mergeVoiced", "500ms")
	v.SetDefault("segmentation.trim", "500ms")
	v.SetDefault("segmentation.coverage", 0.7)

	// Alignment defaults
	v.SetDefault("alignment.minimumGap", 1.0)
	v.SetDefault("alignment.maxDuration", 0)

	// Transcript defaults
	v.SetDefault("transcript.requestsPerMinute", 150)
	v.SetDefault("transcript.mergeGap", 0.1)

	// Media defaults
	v.SetDefault("media.ffmpegPath", "ffmpeg")
	v.SetDefault("media.ffprobePath", "ffprobe")
	v.SetDefault("media.tempDir", "/tmp/multimodal")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.rateLimit", 20)
	v.SetDefault("server.rateBurst", 40)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "multimodal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lockTTL", "30m")
	v.SetDefault("redis.cacheTTL", "5m")

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "datasets")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")
	v.SetDefault("queue.maxRetries", 3)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "multimodal")
	v.SetDefault("tracing.agentHost", "localhost")
	v.SetDefault("tracing.agentPort", 6831)
	v.SetDefault("tracing.samplerType", "const")
	v.SetDefault("tracing.samplerParam", 1.0)
	v.SetDefault("tracing.logSpans", false)

	// Worker defaults
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.workDir", "/tmp/multimodal/work")
	v.SetDefault("worker.jobTimeout", "2h")
}
