package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = crerr.New("invalid configuration")

const (
	RetentionCycles = "cycles"
	RetentionAge    = "age"
)

// Config stores runtime configuration for the updater.
type Config struct {
	AppEnv                     string
	ServiceName                string
	ServiceVersion             string
	APIURL                     string
	PollInterval               time.Duration
	RequestTimeout             time.Duration
	OutputFile                 string
	GracePeriodCycles          int
	RetentionMode              string
	MaxMissing                 time.Duration
	TargetTimezone             string
	Location                   *time.Location
	LogFile                    string
	LogLevel                   logging.Level
	FeedCount                  int
	FeedLang                   string
	FeedMode                   int
	FeedCountry                int
	FeedUserAgent              string
	CircuitEnabled             bool
	CircuitFailureCount        int
	CircuitOpenTimeout         time.Duration
	CircuitHalfOpenMaxReq      int
	UptraceEnabled             bool
	UptraceDSN                 string
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
	PprofEnabled               bool
	PprofAddr                  string
}

// fileConfig mirrors the optional config file. Zero values mean "not set".
type fileConfig struct {
	AppEnv                string        `json:"app_env" yaml:"app_env"`
	ServiceName           string        `json:"service_name" yaml:"service_name"`
	ServiceVersion        string        `json:"service_version" yaml:"service_version"`
	APIURL                string        `json:"api_url" yaml:"api_url"`
	PollIntervalSeconds   int           `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	RequestTimeoutSeconds int           `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	OutputFile            string        `json:"output_file" yaml:"output_file"`
	DatabaseFile          string        `json:"database_file" yaml:"database_file"`
	GracePeriodCycles     *int          `json:"grace_period_cycles" yaml:"grace_period_cycles"`
	RetentionMode         string        `json:"retention_mode" yaml:"retention_mode"`
	MaxMissingSeconds     int           `json:"max_missing_seconds" yaml:"max_missing_seconds"`
	TargetTimezone        string        `json:"target_timezone" yaml:"target_timezone"`
	LogFile               string        `json:"log_file" yaml:"log_file"`
	LogLevel              string        `json:"log_level" yaml:"log_level"`
	Feed                  feedSection   `json:"feed" yaml:"feed"`
	Circuit               circuitConfig `json:"circuit" yaml:"circuit"`
	Uptrace               struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		DSN     string `json:"dsn" yaml:"dsn"`
	} `json:"uptrace" yaml:"uptrace"`
	Pyroscope struct {
		Enabled       bool   `json:"enabled" yaml:"enabled"`
		ServerAddress string `json:"server_address" yaml:"server_address"`
		AppName       string `json:"app_name" yaml:"app_name"`
	} `json:"pyroscope" yaml:"pyroscope"`
	Pprof struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Addr    string `json:"addr" yaml:"addr"`
	} `json:"pprof" yaml:"pprof"`
}

type feedSection struct {
	Count     int    `json:"count" yaml:"count"`
	Lang      string `json:"lang" yaml:"lang"`
	Mode      int    `json:"mode" yaml:"mode"`
	Country   int    `json:"country" yaml:"country"`
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

type circuitConfig struct {
	Enabled            *bool `json:"enabled" yaml:"enabled"`
	FailureCount       int   `json:"failure_count" yaml:"failure_count"`
	OpenTimeoutSeconds int   `json:"open_timeout_seconds" yaml:"open_timeout_seconds"`
	HalfOpenMaxReq     int   `json:"half_open_max_req" yaml:"half_open_max_req"`
}

// Load reads path (JSON or YAML, skipped when empty) and applies environment
// overrides on top. Every failure is marked with ErrInvalidConfig.
func Load(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, crerr.Mark(err, ErrInvalidConfig)
	}
	return cfg, nil
}

func load(path string) (Config, error) {
	file, err := readFile(path)
	if err != nil {
		return Config{}, err
	}

	appEnv, err := parseAppEnv(getEnv("APP_ENV", orDefault(file.AppEnv, EnvDev)))
	if err != nil {
		return Config{}, err
	}

	apiURL := strings.TrimSpace(getEnv("LIVEFEED_API_URL", file.APIURL))
	if apiURL == "" {
		return Config{}, fmt.Errorf("api_url is required")
	}
	if err := validateURL(apiURL); err != nil {
		return Config{}, err
	}

	pollSeconds, err := getEnvAsInt("LIVEFEED_POLL_INTERVAL_SECONDS", file.PollIntervalSeconds)
	if err != nil {
		return Config{}, fmt.Errorf("parse LIVEFEED_POLL_INTERVAL_SECONDS: %w", err)
	}
	if pollSeconds <= 0 {
		return Config{}, fmt.Errorf("poll_interval_seconds must be > 0")
	}

	timeoutSeconds, err := getEnvAsInt("LIVEFEED_REQUEST_TIMEOUT_SECONDS", orDefaultInt(file.RequestTimeoutSeconds, 10))
	if err != nil {
		return Config{}, fmt.Errorf("parse LIVEFEED_REQUEST_TIMEOUT_SECONDS: %w", err)
	}
	if timeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("request_timeout_seconds must be > 0")
	}

	outputFile := strings.TrimSpace(getEnv("LIVEFEED_OUTPUT_FILE", orDefault(file.OutputFile, file.DatabaseFile)))
	if outputFile == "" {
		return Config{}, fmt.Errorf("output_file is required")
	}

	graceDefault := 2
	if file.GracePeriodCycles != nil {
		graceDefault = *file.GracePeriodCycles
	}
	graceCycles, err := getEnvAsInt("LIVEFEED_GRACE_PERIOD_CYCLES", graceDefault)
	if err != nil {
		return Config{}, fmt.Errorf("parse LIVEFEED_GRACE_PERIOD_CYCLES: %w", err)
	}
	if graceCycles < 0 {
		return Config{}, fmt.Errorf("grace_period_cycles must be >= 0")
	}

	retentionMode := strings.ToLower(strings.TrimSpace(getEnv("LIVEFEED_RETENTION_MODE", orDefault(file.RetentionMode, RetentionCycles))))
	if retentionMode != RetentionCycles && retentionMode != RetentionAge {
		return Config{}, fmt.Errorf("invalid retention_mode %q: valid values are %s, %s", retentionMode, RetentionCycles, RetentionAge)
	}
	maxMissingSeconds, err := getEnvAsInt("LIVEFEED_MAX_MISSING_SECONDS", file.MaxMissingSeconds)
	if err != nil {
		return Config{}, fmt.Errorf("parse LIVEFEED_MAX_MISSING_SECONDS: %w", err)
	}
	if retentionMode == RetentionAge && maxMissingSeconds <= 0 {
		return Config{}, fmt.Errorf("max_missing_seconds must be > 0 when retention_mode=age")
	}

	timezone := strings.TrimSpace(getEnv("LIVEFEED_TARGET_TIMEZONE", orDefault(file.TargetTimezone, "America/New_York")))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return Config{}, fmt.Errorf("load target_timezone %q: %w", timezone, err)
	}

	logLevel, err := logging.ParseLevel(getEnv("APP_LOG_LEVEL", file.LogLevel))
	if err != nil {
		return Config{}, err
	}

	feed, err := loadFeed(file.Feed)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:            appEnv,
		ServiceName:       getEnv("APP_SERVICE_NAME", orDefault(file.ServiceName, "livefeed-updater")),
		ServiceVersion:    getEnv("APP_SERVICE_VERSION", orDefault(file.ServiceVersion, "dev")),
		APIURL:            apiURL,
		PollInterval:      time.Duration(pollSeconds) * time.Second,
		RequestTimeout:    time.Duration(timeoutSeconds) * time.Second,
		OutputFile:        filepath.Clean(outputFile),
		GracePeriodCycles: graceCycles,
		RetentionMode:     retentionMode,
		MaxMissing:        time.Duration(maxMissingSeconds) * time.Second,
		TargetTimezone:    timezone,
		Location:          location,
		LogFile:           strings.TrimSpace(getEnv("LIVEFEED_LOG_FILE", file.LogFile)),
		LogLevel:          logLevel,
		FeedCount:         feed.Count,
		FeedLang:          feed.Lang,
		FeedMode:          feed.Mode,
		FeedCountry:       feed.Country,
		FeedUserAgent:     feed.UserAgent,
	}

	if err := loadCircuit(&cfg, file.Circuit); err != nil {
		return Config{}, err
	}
	if err := loadObservability(&cfg, file); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	var out fileConfig
	path = strings.TrimSpace(path)
	if path == "" {
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := sonic.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("parse config file %s: %w", path, err)
		}
		return out, nil
	}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return out, nil
}

func loadFeed(file feedSection) (feedSection, error) {
	count, err := getEnvAsInt("LIVEFEED_FEED_COUNT", orDefaultInt(file.Count, 50))
	if err != nil {
		return feedSection{}, fmt.Errorf("parse LIVEFEED_FEED_COUNT: %w", err)
	}
	mode, err := getEnvAsInt("LIVEFEED_FEED_MODE", orDefaultInt(file.Mode, 4))
	if err != nil {
		return feedSection{}, fmt.Errorf("parse LIVEFEED_FEED_MODE: %w", err)
	}
	country, err := getEnvAsInt("LIVEFEED_FEED_COUNTRY", orDefaultInt(file.Country, 19))
	if err != nil {
		return feedSection{}, fmt.Errorf("parse LIVEFEED_FEED_COUNTRY: %w", err)
	}
	if count <= 0 || mode <= 0 || country <= 0 {
		return feedSection{}, fmt.Errorf("feed count, mode and country must be > 0")
	}

	return feedSection{
		Count:     count,
		Lang:      getEnv("LIVEFEED_FEED_LANG", orDefault(file.Lang, "en")),
		Mode:      mode,
		Country:   country,
		UserAgent: strings.TrimSpace(getEnv("LIVEFEED_FEED_USER_AGENT", file.UserAgent)),
	}, nil
}

func loadCircuit(cfg *Config, file circuitConfig) error {
	enabledDefault := "true"
	if file.Enabled != nil {
		enabledDefault = strconv.FormatBool(*file.Enabled)
	}
	enabled, err := strconv.ParseBool(getEnv("LIVEFEED_CIRCUIT_ENABLED", enabledDefault))
	if err != nil {
		return fmt.Errorf("parse LIVEFEED_CIRCUIT_ENABLED: %w", err)
	}
	failureCount, err := getEnvAsInt("LIVEFEED_CIRCUIT_FAILURE_COUNT", orDefaultInt(file.FailureCount, 5))
	if err != nil {
		return fmt.Errorf("parse LIVEFEED_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if failureCount < 1 {
		return fmt.Errorf("circuit failure_count must be >= 1")
	}
	openSeconds, err := getEnvAsInt("LIVEFEED_CIRCUIT_OPEN_TIMEOUT_SECONDS", orDefaultInt(file.OpenTimeoutSeconds, 60))
	if err != nil {
		return fmt.Errorf("parse LIVEFEED_CIRCUIT_OPEN_TIMEOUT_SECONDS: %w", err)
	}
	if openSeconds <= 0 {
		return fmt.Errorf("circuit open_timeout_seconds must be > 0")
	}
	halfOpenMaxReq, err := getEnvAsInt("LIVEFEED_CIRCUIT_HALF_OPEN_MAX_REQ", orDefaultInt(file.HalfOpenMaxReq, 1))
	if err != nil {
		return fmt.Errorf("parse LIVEFEED_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if halfOpenMaxReq < 1 {
		return fmt.Errorf("circuit half_open_max_req must be >= 1")
	}

	cfg.CircuitEnabled = enabled
	cfg.CircuitFailureCount = failureCount
	cfg.CircuitOpenTimeout = time.Duration(openSeconds) * time.Second
	cfg.CircuitHalfOpenMaxReq = halfOpenMaxReq
	return nil
}

func loadObservability(cfg *Config, file fileConfig) error {
	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", strconv.FormatBool(file.Uptrace.Enabled)))
	if err != nil {
		return fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", file.Uptrace.DSN))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", strconv.FormatBool(file.Pprof.Enabled)))
	if err != nil {
		return fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	pprofAddr := strings.TrimSpace(getEnv("PPROF_ADDR", orDefault(file.Pprof.Addr, "127.0.0.1:6060")))

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", strconv.FormatBool(file.Pyroscope.Enabled)))
	if err != nil {
		return fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", file.Pyroscope.ServerAddress))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	cfg.UptraceEnabled = uptraceEnabled
	cfg.UptraceDSN = uptraceDSN
	cfg.PprofEnabled = pprofEnabled
	cfg.PprofAddr = pprofAddr
	cfg.PyroscopeEnabled = pyroscopeEnabled
	cfg.PyroscopeServerAddress = pyroscopeServerAddress
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", orDefault(file.Pyroscope.AppName, cfg.ServiceName)))
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	cfg.PyroscopeUploadRate = pyroscopeUploadRate
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse api_url: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api_url must be an absolute http(s) url, got %q", raw)
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func orDefaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
