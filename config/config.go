package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override secrets from the config file
const (
	EnvWeatherAPIKey = "WEATHER_API_KEY"
	EnvNASAAPIKey    = "NASA_API_KEY"
	EnvAmbeeAPIKey   = "AMBEE_API_KEY"
	EnvIPInfoToken   = "IPINFO_TOKEN"
	EnvLLMAPIKey     = "LLM_API_KEY"
)

// Report providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// APIs contains externally issued credentials. None of them has a default.
type APIs struct {
	WeatherAPI string `toml:"weatherapi"`
	NASA       string `toml:"nasa"`
	Ambee      string `toml:"ambee"`
	IPInfo     string `toml:"ipinfo"`
	LLM        string `toml:"llm"`
}

// Endpoints contains base URLs for every upstream service
type Endpoints struct {
	WeatherAPI string `toml:"weatherapi"`
	Power      string `toml:"power"`
	Ambee      string `toml:"ambee"`
	IPInfo     string `toml:"ipinfo"`
}

// Location pins the dashboard to a place. When City is empty the location
// is resolved from the caller's IP address.
type Location struct {
	City      string `toml:"city"`
	Country   string `toml:"country"`
	Latitude  string `toml:"latitude"`
	Longitude string `toml:"longitude"`
}

// Weather contains WeatherAPI.com query configuration
type Weather struct {
	HistoryDays  int `toml:"history_days"`
	ForecastDays int `toml:"forecast_days"`
}

// Precipitation contains the satellite precipitation window
type Precipitation struct {
	DaysBefore int    `toml:"days_before"`
	DaysAfter  int    `toml:"days_after"`
	Community  string `toml:"community"`
	Parameter  string `toml:"parameter"`
}

// Pollen contains pollen source configuration
type Pollen struct {
	BackupFile string `toml:"backup_file"` // CSV served when both live endpoints fail
}

// Report contains language model configuration for narrative reports
type Report struct {
	Provider    string  `toml:"provider"`  // openai or anthropic
	Model       string  `toml:"model"`     // narrative report
	AskModel    string  `toml:"ask_model"` // custom statistic questions
	BaseURL     string  `toml:"base_url"`  // OpenAI-compatible endpoint
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float64 `toml:"temperature"`
	TopP        float64 `toml:"top_p"`
	MaxRetries  int     `toml:"max_retries"`
	BaseDelayMs int     `toml:"base_delay_ms"`
	MaxDelayMs  int     `toml:"max_delay_ms"`
	TimeoutSec  int     `toml:"timeout_sec"`
}

// Logging contains logging configuration with rotation support
type Logging struct {
	Enabled         bool   `toml:"enabled"`
	Directory       string `toml:"directory"`
	FilenamePattern string `toml:"filename_pattern"`
	Level           string `toml:"level"`
	MaxFiles        int    `toml:"max_files"`
	MaxSizeMB       int    `toml:"max_size_mb"`
	ConsoleOutput   bool   `toml:"console_output"`
}

// Server contains HTTP server configuration for the serve command
type Server struct {
	Addr string `toml:"addr"`
}

// Config represents the complete application configuration
type Config struct {
	APIs          APIs          `toml:"apis"`
	Endpoints     Endpoints     `toml:"endpoints"`
	Location      Location      `toml:"location"`
	Weather       Weather       `toml:"weather"`
	Precipitation Precipitation `toml:"precipitation"`
	Pollen        Pollen        `toml:"pollen"`
	Report        Report        `toml:"report"`
	Logging       Logging       `toml:"logging"`
	Server        Server        `toml:"server"`
}

// Satellite window used when the keys are absent. Zero is a valid setting.
const (
	defaultDaysBefore = 7
	defaultDaysAfter  = 3
)

// New returns a configuration populated only with defaults
func New() *Config {
	c := unset()
	c.ApplyDefaults()
	return c
}

// unset returns the starting point for decoding. Fields where zero is
// meaningful are seeded here, before the file is read.
func unset() *Config {
	return &Config{
		Precipitation: Precipitation{
			DaysBefore: defaultDaysBefore,
			DaysAfter:  defaultDaysAfter,
		},
	}
}

// LoadConfig reads and parses a TOML configuration file
func LoadConfig(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigNotFoundError{Path: cleanPath}
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	config := unset()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML configuration: %w", err)
	}

	config.ApplyDefaults()

	return config, nil
}

// ApplyEnv overrides credentials with values found through lookup.
// Pass os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	override := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(&c.APIs.WeatherAPI, EnvWeatherAPIKey)
	override(&c.APIs.NASA, EnvNASAAPIKey)
	override(&c.APIs.Ambee, EnvAmbeeAPIKey)
	override(&c.APIs.IPInfo, EnvIPInfoToken)
	override(&c.APIs.LLM, EnvLLMAPIKey)
}

// ApplyDefaults sets default values for optional configuration fields
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Endpoints.WeatherAPI) == "" {
		c.Endpoints.WeatherAPI = "http://api.weatherapi.com/v1"
	}
	if strings.TrimSpace(c.Endpoints.Power) == "" {
		c.Endpoints.Power = "https://power.larc.nasa.gov/api/temporal/daily/point"
	}
	if strings.TrimSpace(c.Endpoints.Ambee) == "" {
		c.Endpoints.Ambee = "https://api.ambeedata.com"
	}
	if strings.TrimSpace(c.Endpoints.IPInfo) == "" {
		c.Endpoints.IPInfo = "https://ipinfo.io"
	}

	if c.Weather.HistoryDays <= 0 {
		c.Weather.HistoryDays = 7
	}
	if c.Weather.ForecastDays <= 0 {
		c.Weather.ForecastDays = 3
	}

	if strings.TrimSpace(c.Precipitation.Community) == "" {
		c.Precipitation.Community = "AG"
	}
	if strings.TrimSpace(c.Precipitation.Parameter) == "" {
		c.Precipitation.Parameter = "PRECTOTCORR"
	}

	if strings.TrimSpace(c.Pollen.BackupFile) == "" {
		c.Pollen.BackupFile = filepath.Join("data", "pollen_backup.csv")
	}

	if strings.TrimSpace(c.Report.Provider) == "" {
		c.Report.Provider = ProviderOpenAI
	}
	c.Report.Provider = strings.ToLower(strings.TrimSpace(c.Report.Provider))
	if strings.TrimSpace(c.Report.Model) == "" {
		switch c.Report.Provider {
		case ProviderAnthropic:
			c.Report.Model = "claude-3-5-sonnet-20241022"
		default:
			c.Report.Model = "Cohere-command-r"
		}
	}
	if strings.TrimSpace(c.Report.AskModel) == "" {
		switch c.Report.Provider {
		case ProviderAnthropic:
			c.Report.AskModel = c.Report.Model
		default:
			c.Report.AskModel = "gpt-4o-mini"
		}
	}
	if strings.TrimSpace(c.Report.BaseURL) == "" && c.Report.Provider == ProviderOpenAI {
		c.Report.BaseURL = "https://models.inference.ai.azure.com/"
	}
	if c.Report.MaxTokens <= 0 {
		c.Report.MaxTokens = 4096
	}
	if c.Report.Temperature <= 0 {
		c.Report.Temperature = 0.3
	}
	if c.Report.TopP <= 0 {
		c.Report.TopP = 0.9
	}
	if c.Report.MaxRetries <= 0 {
		c.Report.MaxRetries = 3
	}
	if c.Report.BaseDelayMs <= 0 {
		c.Report.BaseDelayMs = 1000
	}
	if c.Report.MaxDelayMs <= 0 {
		c.Report.MaxDelayMs = 30000
	}
	if c.Report.TimeoutSec <= 0 {
		c.Report.TimeoutSec = 120
	}

	if strings.TrimSpace(c.Logging.Directory) == "" {
		c.Logging.Directory = "logs"
	}
	if strings.TrimSpace(c.Logging.FilenamePattern) == "" {
		c.Logging.FilenamePattern = "farmersaid-YYYYMMDD.log"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxFiles <= 0 {
		c.Logging.MaxFiles = 7
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 10
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
}

// HasFixedLocation reports whether the location is pinned in configuration
func (c *Config) HasFixedLocation() bool {
	return strings.TrimSpace(c.Location.City) != ""
}

// ConfigNotFoundError represents a missing configuration file
type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("configuration file not found: %s\n\nTo create a sample configuration file, run:\n  %s generate-config", e.Path, filepath.Base(os.Args[0]))
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors
type MultiValidationError struct {
	Errors []ValidationError
}

func (e *MultiValidationError) Error() string {
	var messages []string
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  %s", strings.Join(messages, "\n  "))
}

// Validate checks the configuration for correctness and completeness
func (c *Config) Validate() error {
	var errors []ValidationError

	errors = append(errors, c.validateAPIKeys()...)
	errors = append(errors, c.validateLocation()...)
	errors = append(errors, c.validateWindows()...)
	errors = append(errors, c.validateReport()...)
	errors = append(errors, c.validateLogging()...)

	if strings.TrimSpace(c.Pollen.BackupFile) == "" {
		errors = append(errors, ValidationError{
			Field:   "pollen.backup_file",
			Message: "backup file path is required",
		})
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}
	return nil
}

// RequireLLM checks that a language model credential is present.
// Only the report commands need one.
func (c *Config) RequireLLM() error {
	if strings.TrimSpace(c.APIs.LLM) == "" {
		return &MultiValidationError{Errors: []ValidationError{{
			Field:   "apis.llm",
			Message: fmt.Sprintf("language model API key is required for reports (set it in the config or %s)", EnvLLMAPIKey),
		}}}
	}
	return nil
}

// validateAPIKeys checks that required API keys are present
func (c *Config) validateAPIKeys() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.APIs.WeatherAPI) == "" {
		errors = append(errors, ValidationError{
			Field:   "apis.weatherapi",
			Message: fmt.Sprintf("WeatherAPI.com key is required. Get one at https://www.weatherapi.com/ or set %s", EnvWeatherAPIKey),
		})
	}

	if !c.HasFixedLocation() && strings.TrimSpace(c.APIs.IPInfo) == "" {
		errors = append(errors, ValidationError{
			Field:   "apis.ipinfo",
			Message: fmt.Sprintf("ipinfo token is required when [location] is not set (or set %s)", EnvIPInfoToken),
		})
	}

	return errors
}

// validateLocation checks a pinned location
func (c *Config) validateLocation() []ValidationError {
	var errors []ValidationError
	if !c.HasFixedLocation() {
		return nil
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(c.Location.Latitude), 64)
	if err != nil || lat < -90 || lat > 90 {
		errors = append(errors, ValidationError{
			Field:   "location.latitude",
			Message: fmt.Sprintf("latitude must be a number between -90 and 90, got '%s'", c.Location.Latitude),
		})
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(c.Location.Longitude), 64)
	if err != nil || lon < -180 || lon > 180 {
		errors = append(errors, ValidationError{
			Field:   "location.longitude",
			Message: fmt.Sprintf("longitude must be a number between -180 and 180, got '%s'", c.Location.Longitude),
		})
	}

	return errors
}

// validateWindows checks the day counts for every source
func (c *Config) validateWindows() []ValidationError {
	var errors []ValidationError

	if c.Weather.HistoryDays < 1 || c.Weather.HistoryDays > 30 {
		errors = append(errors, ValidationError{
			Field:   "weather.history_days",
			Message: fmt.Sprintf("history_days must be between 1 and 30, got %d", c.Weather.HistoryDays),
		})
	}
	if c.Weather.ForecastDays < 1 || c.Weather.ForecastDays > 14 {
		errors = append(errors, ValidationError{
			Field:   "weather.forecast_days",
			Message: fmt.Sprintf("forecast_days must be between 1 and 14, got %d", c.Weather.ForecastDays),
		})
	}
	if c.Precipitation.DaysBefore < 0 || c.Precipitation.DaysBefore > 365 {
		errors = append(errors, ValidationError{
			Field:   "precipitation.days_before",
			Message: fmt.Sprintf("days_before must be between 0 and 365, got %d", c.Precipitation.DaysBefore),
		})
	}
	if c.Precipitation.DaysAfter < 0 || c.Precipitation.DaysAfter > 30 {
		errors = append(errors, ValidationError{
			Field:   "precipitation.days_after",
			Message: fmt.Sprintf("days_after must be between 0 and 30, got %d", c.Precipitation.DaysAfter),
		})
	}

	return errors
}

// validateReport checks language model settings
func (c *Config) validateReport() []ValidationError {
	var errors []ValidationError

	switch c.Report.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errors = append(errors, ValidationError{
			Field:   "report.provider",
			Message: fmt.Sprintf("provider must be one of: %s, %s, got '%s'", ProviderOpenAI, ProviderAnthropic, c.Report.Provider),
		})
	}

	if c.Report.MaxTokens < 100 || c.Report.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "report.max_tokens",
			Message: fmt.Sprintf("max_tokens must be between 100 and 8192, got %d", c.Report.MaxTokens),
		})
	}

	if c.Report.Temperature < 0 || c.Report.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "report.temperature",
			Message: fmt.Sprintf("temperature must be between 0 and 1, got %.2f", c.Report.Temperature),
		})
	}

	if c.Report.TopP < 0 || c.Report.TopP > 1 {
		errors = append(errors, ValidationError{
			Field:   "report.top_p",
			Message: fmt.Sprintf("top_p must be between 0 and 1, got %.2f", c.Report.TopP),
		})
	}

	if c.Report.MaxRetries > 10 {
		errors = append(errors, ValidationError{
			Field:   "report.max_retries",
			Message: fmt.Sprintf("max_retries must be between 0 and 10, got %d", c.Report.MaxRetries),
		})
	}

	return errors
}

// validateLogging checks logging configuration
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("level must be one of: debug, info, warn, error, got '%s'", c.Logging.Level),
		})
	}

	if c.Logging.MaxFiles < 0 || c.Logging.MaxFiles > 365 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_files",
			Message: fmt.Sprintf("max_files must be between 0 and 365, got %d", c.Logging.MaxFiles),
		})
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxSizeMB > 1000 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Message: fmt.Sprintf("max_size_mb must be between 0 and 1000, got %d", c.Logging.MaxSizeMB),
		})
	}

	if c.Logging.Enabled && strings.TrimSpace(c.Logging.Directory) == "" {
		errors = append(errors, ValidationError{
			Field:   "logging.directory",
			Message: "directory is required when logging is enabled",
		})
	}

	return errors
}

// GenerateSampleConfig creates a sample configuration file at the specified path
func GenerateSampleConfig(configPath string) error {
	sampleConfig := `# FarmersAid configuration
# Weather, precipitation and pollen dashboard with narrative reports
#
# Every key below can also come from the environment:
#   WEATHER_API_KEY, NASA_API_KEY, AMBEE_API_KEY, IPINFO_TOKEN, LLM_API_KEY
# A .env file in the working directory is loaded automatically.

[apis]
# https://www.weatherapi.com/
weatherapi = ""
# Optional. NASA POWER works without a key at lower rate limits.
nasa = ""
# https://www.getambee.com/
ambee = ""
# https://ipinfo.io/ (only needed when [location] is empty)
ipinfo = ""
# OpenAI-compatible token or Anthropic key, depending on [report] provider
llm = ""

[location]
# Leave city empty to resolve the location from your IP address
city = ""
country = ""
latitude = ""
longitude = ""

[weather]
history_days = 7    # one request per day
forecast_days = 3

[precipitation]
# Satellite window around today
days_before = 7
days_after = 3
community = "AG"
parameter = "PRECTOTCORR"

[pollen]
# Served, re-timestamped to the current time, when both pollen endpoints fail
backup_file = "data/pollen_backup.csv"

[report]
provider = "openai"                                 # openai or anthropic
model = "Cohere-command-r"                          # narrative report
ask_model = "gpt-4o-mini"                           # custom statistic questions
base_url = "https://models.inference.ai.azure.com/"
max_tokens = 4096
temperature = 0.3
top_p = 0.9
max_retries = 3
base_delay_ms = 1000
max_delay_ms = 30000

[logging]
enabled = false
directory = "logs"
filename_pattern = "farmersaid-YYYYMMDD.log"
level = "info"
max_files = 7
max_size_mb = 10
console_output = true

[server]
addr = ":8080"
`

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}

	return nil
}
