package profile

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wsu2059q/qvqchat/internal/errors"
)

// CapabilityProfile holds the raw per-capability model settings as read
// from the environment or config file. Empty fields are resolved against
// the dialogue capability by ai.Resolve.
type CapabilityProfile struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// Profile is the process configuration.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string `mapstructure:"mode"`
	// Data is the data directory
	Data string `mapstructure:"data"`
	// DSN points to where qvqchat stores memory and conversation state
	DSN string `mapstructure:"dsn"`
	// Driver is the database driver (sqlite or postgres)
	Driver string `mapstructure:"driver"`
	// Version is the current version
	Version string `mapstructure:"-"`

	// Capability configuration. Dialogue is the base: api key and base
	// URL of the other capabilities fall back to it when unset.
	Dialogue CapabilityProfile `mapstructure:"dialogue"` // QVQCHAT_DIALOGUE_*
	Intent   CapabilityProfile `mapstructure:"intent"`   // QVQCHAT_INTENT_*
	Memory   CapabilityProfile `mapstructure:"memory"`   // QVQCHAT_MEMORY_*
	Vision   CapabilityProfile `mapstructure:"vision"`   // QVQCHAT_VISION_*
	Voice    CapabilityProfile `mapstructure:"voice"`    // QVQCHAT_VOICE_*

	// Stalker mode: low-probability ambient participation in group chats.
	StalkerEnabled            bool    `mapstructure:"stalker_enabled"`              // QVQCHAT_STALKER_ENABLED (default: true)
	DefaultProbability        float64 `mapstructure:"default_probability"`          // QVQCHAT_STALKER_DEFAULT_PROBABILITY (default: 0.03)
	MentionProbability        float64 `mapstructure:"mention_probability"`          // QVQCHAT_STALKER_MENTION_PROBABILITY (default: 0.8)
	KeywordProbability        float64 `mapstructure:"keyword_probability"`          // QVQCHAT_STALKER_KEYWORD_PROBABILITY (default: 0.5)
	QuestionProbability       float64 `mapstructure:"question_probability"`         // QVQCHAT_STALKER_QUESTION_PROBABILITY (default: 0.4)
	MinMessagesBetweenReplies int     `mapstructure:"min_messages_between_replies"` // QVQCHAT_STALKER_MIN_MESSAGES (default: 15)
	MaxRepliesPerHour         int     `mapstructure:"max_replies_per_hour"`         // QVQCHAT_STALKER_MAX_REPLIES_PER_HOUR (default: 8)

	// Guardrails.
	MaxMessageLength int           `mapstructure:"max_message_length"` // QVQCHAT_MAX_MESSAGE_LENGTH (default: 2000)
	RateLimitTokens  int           `mapstructure:"rate_limit_tokens"`  // QVQCHAT_RATE_LIMIT_TOKENS (default: 20000)
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`  // QVQCHAT_RATE_LIMIT_WINDOW_SECONDS (default: 3600s)

	// TriggerKeywords raise the gate probability to the keyword tier
	// when one of them appears in a group message.
	TriggerKeywords []string `mapstructure:"trigger_keywords"` // QVQCHAT_TRIGGER_KEYWORDS (comma separated)

	// Voice output (speech synthesis, optional).
	VoiceEnabled bool   `mapstructure:"voice_enabled"` // QVQCHAT_VOICE_ENABLED (default: false)
	VoiceID      string `mapstructure:"voice_id"`      // QVQCHAT_VOICE_ID
}

// Default returns a profile populated with built-in defaults. Config file
// and environment layers override it in that order.
func Default() *Profile {
	return &Profile{
		Mode:                      "dev",
		Driver:                    "sqlite",
		Data:                      ".",
		StalkerEnabled:            true,
		DefaultProbability:        0.03,
		MentionProbability:        0.8,
		KeywordProbability:        0.5,
		QuestionProbability:       0.4,
		MinMessagesBetweenReplies: 15,
		MaxRepliesPerHour:         8,
		MaxMessageLength:          2000,
		RateLimitTokens:           20000,
		RateLimitWindow:           time.Hour,
	}
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the dialogue capability has credentials
// configured.
func (p *Profile) IsAIEnabled() bool {
	return p.Dialogue.APIKey != "" || p.Dialogue.BaseURL != ""
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setCapability(dst *CapabilityProfile, prefix string) {
	setStr(&dst.BaseURL, prefix+"_BASE_URL")
	setStr(&dst.APIKey, prefix+"_API_KEY")
	setStr(&dst.Model, prefix+"_MODEL")
	if v := os.Getenv(prefix + "_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			dst.Temperature = float32(f)
		}
	}
	setInt(&dst.MaxTokens, prefix+"_MAX_TOKENS")
}

// FromEnv overrides profile fields from QVQCHAT_* environment variables.
// Variables that are unset leave the current value in place.
func (p *Profile) FromEnv() {
	setStr(&p.Mode, "QVQCHAT_MODE")
	setStr(&p.Driver, "QVQCHAT_DRIVER")
	setStr(&p.Data, "QVQCHAT_DATA")
	setStr(&p.DSN, "QVQCHAT_DSN")

	setCapability(&p.Dialogue, "QVQCHAT_DIALOGUE")
	setCapability(&p.Intent, "QVQCHAT_INTENT")
	setCapability(&p.Memory, "QVQCHAT_MEMORY")
	setCapability(&p.Vision, "QVQCHAT_VISION")
	setCapability(&p.Voice, "QVQCHAT_VOICE")

	setBool(&p.StalkerEnabled, "QVQCHAT_STALKER_ENABLED")
	setFloat(&p.DefaultProbability, "QVQCHAT_STALKER_DEFAULT_PROBABILITY")
	setFloat(&p.MentionProbability, "QVQCHAT_STALKER_MENTION_PROBABILITY")
	setFloat(&p.KeywordProbability, "QVQCHAT_STALKER_KEYWORD_PROBABILITY")
	setFloat(&p.QuestionProbability, "QVQCHAT_STALKER_QUESTION_PROBABILITY")
	setInt(&p.MinMessagesBetweenReplies, "QVQCHAT_STALKER_MIN_MESSAGES")
	setInt(&p.MaxRepliesPerHour, "QVQCHAT_STALKER_MAX_REPLIES_PER_HOUR")

	setInt(&p.MaxMessageLength, "QVQCHAT_MAX_MESSAGE_LENGTH")
	setInt(&p.RateLimitTokens, "QVQCHAT_RATE_LIMIT_TOKENS")
	if v := os.Getenv("QVQCHAT_RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.RateLimitWindow = time.Duration(n) * time.Second
		}
	}

	if raw := os.Getenv("QVQCHAT_TRIGGER_KEYWORDS"); raw != "" {
		p.TriggerKeywords = nil
		for _, kw := range strings.Split(raw, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				p.TriggerKeywords = append(p.TriggerKeywords, kw)
			}
		}
	}

	setBool(&p.VoiceEnabled, "QVQCHAT_VOICE_ENABLED")
	setStr(&p.VoiceID, "QVQCHAT_VOICE_ID")
}

// Validate checks the profile for values the core cannot run with.
// Configuration errors are fatal at startup, never per message.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	switch p.Driver {
	case "sqlite":
		if p.DSN == "" {
			p.DSN = "qvqchat_" + p.Mode + ".db"
		}
	case "postgres":
		if p.DSN == "" {
			return errors.ConfigInvalid("postgres driver requires a DSN")
		}
	default:
		return errors.ConfigInvalid("driver must be sqlite or postgres")
	}
	for _, prob := range []float64{p.DefaultProbability, p.MentionProbability, p.KeywordProbability, p.QuestionProbability} {
		if prob < 0 || prob > 1 {
			return errors.ConfigInvalid("reply probabilities must be within [0,1]")
		}
	}
	if p.MinMessagesBetweenReplies < 0 || p.MaxRepliesPerHour < 0 {
		return errors.ConfigInvalid("stalker mode counters must be non-negative")
	}
	if p.MaxMessageLength <= 0 {
		return errors.ConfigInvalid("max message length must be positive")
	}
	if p.RateLimitTokens <= 0 || p.RateLimitWindow <= 0 {
		return errors.ConfigInvalid("rate limit budget and window must be positive")
	}
	return nil
}
