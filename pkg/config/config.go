package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cliniguard-server/pkg/errors"
	"cliniguard-server/pkg/risk"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	Logging    LoggingConfig    `json:"logging"`
	AI         AIConfig         `json:"ai"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Complexity ComplexityConfig `json:"complexity"`
	Emotion    EmotionConfig    `json:"emotion"`
	Risk       RiskConfig       `json:"risk"`
	Audio      AudioConfig      `json:"audio"`
	Messaging  MessagingConfig  `json:"messaging"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port          int           `json:"port"`
	Enabled       bool          `json:"enabled"`
	EnableMetrics bool          `json:"enable_metrics"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// AIConfig holds AI completion provider configuration
type AIConfig struct {
	// DefaultProvider is used when a requested provider is not registered
	DefaultProvider string `json:"default_provider"`

	// Providers lists the providers to register at startup
	Providers []string `json:"providers"`

	// SecondaryProvider handles the second leg of hybrid processing
	SecondaryProvider string `json:"secondary_provider"`

	OpenAIURL      string        `json:"openai_url"`
	OpenAIModel    string        `json:"openai_model"`
	AnthropicURL   string        `json:"anthropic_url"`
	AnthropicModel string        `json:"anthropic_model"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// PipelineConfig holds session pipeline limits
type PipelineConfig struct {
	// MaxTranscriptLength rejects oversized payloads before any AI call
	MaxTranscriptLength int `json:"max_transcript_length"`
}

// ComplexityConfig holds the case-complexity scoring weights and routing
// thresholds. The weights have no documented empirical basis; they are kept
// here as named values so they can be tuned without touching control flow.
type ComplexityConfig struct {
	SessionWeight    float64 `json:"session_weight"`
	DataWeight       float64 `json:"data_weight"`
	RiskFactorWeight float64 `json:"risk_factor_weight"`

	SessionCap    float64 `json:"session_cap"`
	DataCap       float64 `json:"data_cap"`
	RiskFactorCap float64 `json:"risk_factor_cap"`

	// Transcript-only estimation divisors, used when no patient history exists
	LengthDivisor  float64 `json:"length_divisor"`
	WordDivisor    float64 `json:"word_divisor"`
	KeywordDivisor float64 `json:"keyword_divisor"`

	// HybridCutoff is the complexity score at or above which standard-mode
	// cases are routed to the hybrid strategy
	HybridCutoff float64 `json:"hybrid_cutoff"`

	// SummaryThreshold is the prior-data size (chars) above which the hybrid
	// strategy runs a summarization pass first
	SummaryThreshold int `json:"summary_threshold"`
}

// EmotionConfig holds emotion engine merge weights and fixed confidences
type EmotionConfig struct {
	TranscriptWeight     float64 `json:"transcript_weight"`
	AudioWeight          float64 `json:"audio_weight"`
	HybridConfidence     float64 `json:"hybrid_confidence"`
	TranscriptConfidence float64 `json:"transcript_confidence"`
}

// RiskConfig holds keyword lists, signal confidences, severity weights,
// level cut points and suppression caps for the risk fusion engine
type RiskConfig struct {
	CriticalKeywords []string `json:"critical_keywords"`
	HighKeywords     []string `json:"high_keywords"`
	MediumKeywords   []string `json:"medium_keywords"`

	CriticalKeywordConfidence float64 `json:"critical_keyword_confidence"`
	HighKeywordConfidence     float64 `json:"high_keyword_confidence"`
	MediumKeywordConfidence   float64 `json:"medium_keyword_confidence"`

	// Emotion-threshold rule tunables
	DespairSadnessMin float64 `json:"despair_sadness_min"`
	DespairHopeMax    float64 `json:"despair_hope_max"`
	DespairConfidence float64 `json:"despair_confidence"`
	PanicFearMin      float64 `json:"panic_fear_min"`
	PanicAnxietyMin   float64 `json:"panic_anxiety_min"`
	PanicConfidence   float64 `json:"panic_confidence"`
	LowMoodMax        float64 `json:"low_mood_max"`
	LowMoodConfidence float64 `json:"low_mood_confidence"`

	// Audio-threshold rule tunables
	FlatAffectPitchMaxHz   float64 `json:"flat_affect_pitch_max_hz"`
	FlatAffectTempoMax     float64 `json:"flat_affect_tempo_max"`
	FlatAffectConfidence   float64 `json:"flat_affect_confidence"`
	InstabilityPitchVarMin float64 `json:"instability_pitch_var_min"`
	InstabilityPauseMin    float64 `json:"instability_pause_min"`
	InstabilityConfidence  float64 `json:"instability_confidence"`

	// Severity weights used in score aggregation
	CriticalWeight float64 `json:"critical_weight"`
	HighWeight     float64 `json:"high_weight"`
	MediumWeight   float64 `json:"medium_weight"`
	LowWeight      float64 `json:"low_weight"`

	// Score cut points mapping numeric score to level
	CriticalCutoff float64 `json:"critical_cutoff"`
	HighCutoff     float64 `json:"high_cutoff"`
	MediumCutoff   float64 `json:"medium_cutoff"`

	// Suppression caps applied when a level is downgraded
	CriticalDowngradeCap float64 `json:"critical_downgrade_cap"`
	HighDowngradeCap     float64 `json:"high_downgrade_cap"`

	// PatternScanMinLength gates the AI pattern scan for short, signal-free text
	PatternScanMinLength int `json:"pattern_scan_min_length"`
}

// AudioConfig holds the audio stream analyzer configuration
type AudioConfig struct {
	// Human voice band in Hz; samples outside it are replaced by the
	// previous valid sample
	VoiceBandMinHz float64 `json:"voice_band_min_hz"`
	VoiceBandMaxHz float64 `json:"voice_band_max_hz"`

	// PitchHistorySize bounds the rolling pitch history
	PitchHistorySize int `json:"pitch_history_size"`

	// SampleInterval is the streaming analyzer's polling interval
	SampleInterval time.Duration `json:"sample_interval"`
}

// MessagingConfig holds AMQP audit/event publishing configuration
type MessagingConfig struct {
	AMQPURL      string `json:"amqp_url"`
	ExchangeName string `json:"exchange_name"`
	RoutingKey   string `json:"routing_key"`
}

// DefaultRiskKeywords returns the built-in severity-tiered keyword lists.
// The lists are exact-substring matches against lowercased transcript text;
// the risk package owns the single source of the defaults.
func DefaultRiskKeywords() (critical, high, medium []string) {
	return risk.DefaultKeywordTiers()
}

// Load loads configuration from environment variables, attempting to load a
// .env file first
func Load(logger *logrus.Logger) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom, _ = filepath.Abs(envFile)
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Warn("No .env file found, using environment variables only")
	}

	config := &Config{}

	loadHTTPConfig(&config.HTTP)
	loadLoggingConfig(&config.Logging)
	loadAIConfig(&config.AI)
	loadPipelineConfig(&config.Pipeline)
	loadComplexityConfig(&config.Complexity)
	loadEmotionConfig(&config.Emotion)
	loadRiskConfig(&config.Risk)
	loadAudioConfig(&config.Audio)
	loadMessagingConfig(&config.Messaging)

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Default returns a configuration populated with built-in defaults only
func Default() *Config {
	config := &Config{}
	loadHTTPConfig(&config.HTTP)
	loadLoggingConfig(&config.Logging)
	loadAIConfig(&config.AI)
	loadPipelineConfig(&config.Pipeline)
	loadComplexityConfig(&config.Complexity)
	loadEmotionConfig(&config.Emotion)
	loadRiskConfig(&config.Risk)
	loadAudioConfig(&config.Audio)
	loadMessagingConfig(&config.Messaging)
	return config
}

func loadHTTPConfig(config *HTTPConfig) {
	config.Port = getEnvInt("HTTP_PORT", 8080)
	config.Enabled = getEnvBool("HTTP_ENABLED", true)
	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
}

func loadLoggingConfig(config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	config.Format = getEnv("LOG_FORMAT", "text")
}

func loadAIConfig(config *AIConfig) {
	config.DefaultProvider = getEnv("AI_DEFAULT_PROVIDER", "openai")
	config.SecondaryProvider = getEnv("AI_SECONDARY_PROVIDER", "anthropic")

	config.Providers = nil
	providersStr := getEnv("AI_PROVIDERS", "openai,anthropic")
	for _, p := range strings.Split(providersStr, ",") {
		if trimmed := strings.TrimSpace(strings.ToLower(p)); trimmed != "" {
			config.Providers = append(config.Providers, trimmed)
		}
	}

	config.OpenAIURL = getEnv("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions")
	config.OpenAIModel = getEnv("OPENAI_MODEL", "gpt-4o-mini")
	config.AnthropicURL = getEnv("ANTHROPIC_API_URL", "https://api.anthropic.com/v1/messages")
	config.AnthropicModel = getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022")
	config.RequestTimeout = getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second)
}

func loadPipelineConfig(config *PipelineConfig) {
	config.MaxTranscriptLength = getEnvInt("PIPELINE_MAX_TRANSCRIPT_LENGTH", 100000)
}

func loadComplexityConfig(config *ComplexityConfig) {
	config.SessionWeight = getEnvFloat("COMPLEXITY_SESSION_WEIGHT", 0.4)
	config.DataWeight = getEnvFloat("COMPLEXITY_DATA_WEIGHT", 0.4)
	config.RiskFactorWeight = getEnvFloat("COMPLEXITY_RISK_FACTOR_WEIGHT", 0.2)
	config.SessionCap = getEnvFloat("COMPLEXITY_SESSION_CAP", 50)
	config.DataCap = getEnvFloat("COMPLEXITY_DATA_CAP", 200000)
	config.RiskFactorCap = getEnvFloat("COMPLEXITY_RISK_FACTOR_CAP", 5)
	config.LengthDivisor = getEnvFloat("COMPLEXITY_LENGTH_DIVISOR", 5000)
	config.WordDivisor = getEnvFloat("COMPLEXITY_WORD_DIVISOR", 1000)
	config.KeywordDivisor = getEnvFloat("COMPLEXITY_KEYWORD_DIVISOR", 3)
	config.HybridCutoff = getEnvFloat("COMPLEXITY_HYBRID_CUTOFF", 0.7)
	config.SummaryThreshold = getEnvInt("COMPLEXITY_SUMMARY_THRESHOLD", 10000)
}

func loadEmotionConfig(config *EmotionConfig) {
	config.TranscriptWeight = getEnvFloat("EMOTION_TRANSCRIPT_WEIGHT", 0.7)
	config.AudioWeight = getEnvFloat("EMOTION_AUDIO_WEIGHT", 0.3)
	config.HybridConfidence = getEnvFloat("EMOTION_HYBRID_CONFIDENCE", 0.85)
	config.TranscriptConfidence = getEnvFloat("EMOTION_TRANSCRIPT_CONFIDENCE", 0.75)
}

func loadRiskConfig(config *RiskConfig) {
	critical, high, medium := DefaultRiskKeywords()
	config.CriticalKeywords = getEnvList("RISK_CRITICAL_KEYWORDS", critical)
	config.HighKeywords = getEnvList("RISK_HIGH_KEYWORDS", high)
	config.MediumKeywords = getEnvList("RISK_MEDIUM_KEYWORDS", medium)

	config.CriticalKeywordConfidence = getEnvFloat("RISK_CRITICAL_KEYWORD_CONFIDENCE", 0.9)
	config.HighKeywordConfidence = getEnvFloat("RISK_HIGH_KEYWORD_CONFIDENCE", 0.75)
	config.MediumKeywordConfidence = getEnvFloat("RISK_MEDIUM_KEYWORD_CONFIDENCE", 0.6)

	config.DespairSadnessMin = getEnvFloat("RISK_DESPAIR_SADNESS_MIN", 0.8)
	config.DespairHopeMax = getEnvFloat("RISK_DESPAIR_HOPE_MAX", 0.2)
	config.DespairConfidence = getEnvFloat("RISK_DESPAIR_CONFIDENCE", 0.8)
	config.PanicFearMin = getEnvFloat("RISK_PANIC_FEAR_MIN", 0.8)
	config.PanicAnxietyMin = getEnvFloat("RISK_PANIC_ANXIETY_MIN", 0.8)
	config.PanicConfidence = getEnvFloat("RISK_PANIC_CONFIDENCE", 0.7)
	config.LowMoodMax = getEnvFloat("RISK_LOW_MOOD_MAX", -0.7)
	config.LowMoodConfidence = getEnvFloat("RISK_LOW_MOOD_CONFIDENCE", 0.75)

	config.FlatAffectPitchMaxHz = getEnvFloat("RISK_FLAT_AFFECT_PITCH_MAX_HZ", 100)
	config.FlatAffectTempoMax = getEnvFloat("RISK_FLAT_AFFECT_TEMPO_MAX", 80)
	config.FlatAffectConfidence = getEnvFloat("RISK_FLAT_AFFECT_CONFIDENCE", 0.65)
	config.InstabilityPitchVarMin = getEnvFloat("RISK_INSTABILITY_PITCH_VAR_MIN", 35)
	config.InstabilityPauseMin = getEnvFloat("RISK_INSTABILITY_PAUSE_MIN", 12)
	config.InstabilityConfidence = getEnvFloat("RISK_INSTABILITY_CONFIDENCE", 0.6)

	config.CriticalWeight = getEnvFloat("RISK_CRITICAL_WEIGHT", 100)
	config.HighWeight = getEnvFloat("RISK_HIGH_WEIGHT", 70)
	config.MediumWeight = getEnvFloat("RISK_MEDIUM_WEIGHT", 40)
	config.LowWeight = getEnvFloat("RISK_LOW_WEIGHT", 10)

	config.CriticalCutoff = getEnvFloat("RISK_CRITICAL_CUTOFF", 80)
	config.HighCutoff = getEnvFloat("RISK_HIGH_CUTOFF", 60)
	config.MediumCutoff = getEnvFloat("RISK_MEDIUM_CUTOFF", 30)

	config.CriticalDowngradeCap = getEnvFloat("RISK_CRITICAL_DOWNGRADE_CAP", 79)
	config.HighDowngradeCap = getEnvFloat("RISK_HIGH_DOWNGRADE_CAP", 59)

	config.PatternScanMinLength = getEnvInt("RISK_PATTERN_SCAN_MIN_LENGTH", 100)
}

func loadAudioConfig(config *AudioConfig) {
	config.VoiceBandMinHz = getEnvFloat("AUDIO_VOICE_BAND_MIN_HZ", 85)
	config.VoiceBandMaxHz = getEnvFloat("AUDIO_VOICE_BAND_MAX_HZ", 255)
	config.PitchHistorySize = getEnvInt("AUDIO_PITCH_HISTORY_SIZE", 100)
	config.SampleInterval = getEnvDuration("AUDIO_SAMPLE_INTERVAL", 100*time.Millisecond)
}

func loadMessagingConfig(config *MessagingConfig) {
	config.AMQPURL = getEnv("AMQP_URL", "")
	config.ExchangeName = getEnv("AMQP_EXCHANGE_NAME", "cliniguard.events")
	config.RoutingKey = getEnv("AMQP_ROUTING_KEY", "audit")
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("invalid HTTP port").WithField("port", c.HTTP.Port)
	}

	if c.Pipeline.MaxTranscriptLength <= 0 {
		return errors.New("max transcript length must be positive")
	}

	if c.Complexity.HybridCutoff < 0 || c.Complexity.HybridCutoff > 1 {
		return errors.New("hybrid cutoff must be within [0,1]").
			WithField("cutoff", c.Complexity.HybridCutoff)
	}

	weightSum := c.Emotion.TranscriptWeight + c.Emotion.AudioWeight
	if weightSum < 0.99 || weightSum > 1.01 {
		return errors.New("emotion merge weights must sum to 1").
			WithField("sum", weightSum)
	}

	if c.Risk.CriticalCutoff <= c.Risk.HighCutoff || c.Risk.HighCutoff <= c.Risk.MediumCutoff {
		return errors.New("risk cut points must be strictly decreasing")
	}

	if c.Audio.VoiceBandMinHz >= c.Audio.VoiceBandMaxHz {
		return errors.New("voice band minimum must be below maximum")
	}

	if c.Audio.PitchHistorySize <= 0 {
		return errors.New("pitch history size must be positive")
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Helper function to get a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// Helper function to get a comma-separated list environment variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
