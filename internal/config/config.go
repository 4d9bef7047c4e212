package config

import (
	"encoding/json"
	"os"
)

// Create new config instance
func NewConfig() *Config {
	return &Config{}
}

// Load configuration file in json format
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err == nil {
		_ = json.Unmarshal(data, c)
	}
	return err
}

// Normalize fills in defaults for everything the file left unset.
func (c *Config) Normalize() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Upload.MaxRequestBodyMB == 0 {
		c.Upload.MaxRequestBodyMB = 50
	}
	if c.Upload.MaxMultipartMemoryMB == 0 {
		c.Upload.MaxMultipartMemoryMB = 16
	}
	if c.Upload.MaxBatchFiles == 0 {
		c.Upload.MaxBatchFiles = 10
	}
	if c.Upload.MaxBatchFileMB == 0 {
		c.Upload.MaxBatchFileMB = 10
	}
	if c.Worker.MinWorkers == 0 {
		c.Worker.MinWorkers = 1
	}
	if c.Worker.MaxWorkers == 0 {
		c.Worker.MaxWorkers = 4
	}
	if c.Worker.IdleTimeoutMs == 0 {
		c.Worker.IdleTimeoutMs = 5000
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = 10000
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = os.TempDir()
	}
	if c.Storage.ArtifactDir == "" {
		c.Storage.ArtifactDir = "optimized"
	}
	if c.Storage.ContextTTLSeconds == 0 {
		c.Storage.ContextTTLSeconds = 3600
	}
	if c.Storage.CleanupIntervalMs == 0 {
		c.Storage.CleanupIntervalMs = 300000
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.Journal.Stream == "" {
		c.Journal.Stream = "image-optimization:journal"
	}
	if c.Journal.Namespace == "" {
		c.Journal.Namespace = "image-optimization"
	}
	if c.Journal.MaxLen == 0 {
		c.Journal.MaxLen = 10000
	}
	if c.Journal.StatusTTLSeconds == 0 {
		c.Journal.StatusTTLSeconds = 3600
	}
}
