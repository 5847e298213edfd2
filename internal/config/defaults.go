package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/kotae.db"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		if cfg.LLM.Provider == "anthropic" {
			cfg.LLM.Model = "claude-3-5-haiku-latest"
		} else {
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 1000
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 200
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 5
	}
	if cfg.Retrieval.DefaultMemoryTurns == 0 {
		cfg.Retrieval.DefaultMemoryTurns = 8
	}
	if cfg.Grounding.MaxAnswerChars == 0 {
		cfg.Grounding.MaxAnswerChars = 4000
	}
	if cfg.Limits.Backend == "" {
		cfg.Limits.Backend = "memory"
	}
	if cfg.Limits.Window == 0 {
		cfg.Limits.Window = time.Minute
	}
	if cfg.Limits.TenantPerWindow == 0 {
		cfg.Limits.TenantPerWindow = 600
	}
	if cfg.Limits.UserPerWindow == 0 {
		cfg.Limits.UserPerWindow = 60
	}
	if cfg.Limits.DefaultDailyRequests == 0 {
		cfg.Limits.DefaultDailyRequests = 1000
	}
	if cfg.Limits.DefaultMonthlyTokens == 0 {
		cfg.Limits.DefaultMonthlyTokens = 1_000_000
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "kotae:rl:"
	}
	if cfg.Documents.PrivilegedRole == "" {
		cfg.Documents.PrivilegedRole = "admin"
	}
	if cfg.Documents.RestrictedTags == nil {
		cfg.Documents.RestrictedTags = []string{"hr_only"}
	}
	if cfg.Persona.BotName == "" {
		cfg.Persona.BotName = "AI Assistant"
	}
	if cfg.Persona.CompanyName == "" {
		cfg.Persona.CompanyName = "our team"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".json", ".pdf", ".docx", ".xlsx", ".odt", ".rtf"}
	}
}
