package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Upload    UploadConfig    `json:"upload"`
	Worker    WorkerConfig    `json:"worker"`
	Storage   StorageConfig   `json:"storage"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Redis     RedisConfig     `json:"redis"`
	R2        R2Config        `json:"r2"`
	Journal   JournalConfig   `json:"journal"`
	Sentry    SentryConfig    `json:"sentry"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
	MaxBatchFiles        int   `json:"max_batch_files"`
	MaxBatchFileMB       int64 `json:"max_batch_file"`
}

type WorkerConfig struct {
	MinWorkers    int   `json:"min_workers"`
	MaxWorkers    int   `json:"max_workers"`
	IdleTimeoutMs int64 `json:"idle_timeout_ms"`
	QueueSize     int   `json:"queue_size"`
}

type StorageConfig struct {
	TempDir           string `json:"temp_dir"`
	ArtifactDir       string `json:"artifact_dir"`
	DownloadBaseURL   string `json:"download_base_url"`
	ContextTTLSeconds int64  `json:"context_ttl_seconds"`
	CleanupIntervalMs int64  `json:"cleanup_interval_ms"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type R2Config struct {
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
	Endpoint    string `json:"endpoint"`
}

type JournalConfig struct {
	Enabled          bool   `json:"enabled"`
	Stream           string `json:"stream"`
	Namespace        string `json:"namespace"`
	MaxLen           int64  `json:"max_len"`
	StatusTTLSeconds int64  `json:"status_ttl_seconds"`
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
