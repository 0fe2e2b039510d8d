package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	LLM     LLMConfig
	Discord DiscordConfig

	MaxConcurrentRuns int
	AgentTokenBudget  int
	PresetFile        string
	PatternFile       string
}

// LLMConfig selects the generative provider. The fast model serves the
// many small attacker turns, the smart model serves planning, briefing and
// judging.
type LLMConfig struct {
	Provider   string
	APIKey     string
	FastModel  string
	SmartModel string
}

// Enabled reports whether LLM-assisted planning and the red team can run
// at all. Without a key the engine still works in template mode.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// DiscordConfig carries the notifier credentials. Both fields are required
// for notifications; without them the engine runs silently.
type DiscordConfig struct {
	Token     string
	ChannelID string
}

func (c DiscordConfig) Enabled() bool {
	return c.Token != "" && c.ChannelID != ""
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first if
// present.
// Supported env vars: DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME,
// LLM_PROVIDER, LLM_API_KEY, LLM_FAST_MODEL, LLM_SMART_MODEL,
// DISCORD_TOKEN, DISCORD_CHANNEL_ID, MAX_CONCURRENT_RUNS,
// AGENT_TOKEN_BUDGET, PRESET_FILE, SENSITIVE_PATTERN_FILE
func LoadConfig() *Config {
	_ = godotenv.Load()

	host := getenvDefault("DB_HOST", "localhost")
	portStr := getenvDefault("DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 5432
	}
	user := getenvDefault("DB_USER", "mcpsentry")
	pass := getenvDefault("DB_PASSWORD", "mcpsentry")
	name := getenvDefault("DB_NAME", "mcpsentry")

	maxRuns, err := strconv.Atoi(getenvDefault("MAX_CONCURRENT_RUNS", "3"))
	if err != nil || maxRuns < 1 {
		maxRuns = 3
	}

	// Zero budget means observe-only: spend is accumulated, never enforced.
	tokenBudget, err := strconv.Atoi(getenvDefault("AGENT_TOKEN_BUDGET", "0"))
	if err != nil || tokenBudget < 0 {
		tokenBudget = 0
	}

	return &Config{
		DBHost:     host,
		DBPort:     port,
		DBUser:     user,
		DBPassword: pass,
		DBName:     name,
		LLM: LLMConfig{
			Provider:   getenvDefault("LLM_PROVIDER", "googleai"),
			APIKey:     os.Getenv("LLM_API_KEY"),
			FastModel:  getenvDefault("LLM_FAST_MODEL", "googleai/gemini-2.5-flash"),
			SmartModel: getenvDefault("LLM_SMART_MODEL", "googleai/gemini-2.5-pro"),
		},
		Discord: DiscordConfig{
			Token:     os.Getenv("DISCORD_TOKEN"),
			ChannelID: os.Getenv("DISCORD_CHANNEL_ID"),
		},
		MaxConcurrentRuns: maxRuns,
		AgentTokenBudget:  tokenBudget,
		PresetFile:        os.Getenv("PRESET_FILE"),
		PatternFile:       os.Getenv("SENSITIVE_PATTERN_FILE"),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
