package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LLMConfig holds connection settings for one model endpoint.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "ollama" or "openai"
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

// RAGConfig tunes the ingestion and retrieval pipeline.
type RAGConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	TopK             int `yaml:"top_k"`
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs"`
	EmbedTimeoutSecs int `yaml:"embed_timeout_secs"`
	GenTimeoutSecs   int `yaml:"gen_timeout_secs"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Server   ServerConfig `yaml:"server"`
	EmbedLLM LLMConfig    `yaml:"embed_llm"`
	ChatLLM  LLMConfig    `yaml:"chat_llm"`
	RAG      RAGConfig    `yaml:"rag"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the constraints the pipeline relies on.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 1 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [1, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.RAG.TopK)
	}
	return nil
}

// applyDefaults fills zero values before validation. A zero means the field
// was not set: chunk_overlap 0 is not a valid setting (overlap is strictly
// positive), so it takes the default rather than failing validation.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 5000
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 8
	}
	if cfg.RAG.FetchTimeoutSecs == 0 {
		cfg.RAG.FetchTimeoutSecs = 30
	}
	if cfg.RAG.EmbedTimeoutSecs == 0 {
		cfg.RAG.EmbedTimeoutSecs = 120
	}
	if cfg.RAG.GenTimeoutSecs == 0 {
		cfg.RAG.GenTimeoutSecs = 120
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "ollama"
	}
}
