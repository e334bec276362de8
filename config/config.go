// Package config has the configuration for the medical data service
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment the service runs in
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// String returns the environment name
func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment maps an ENV value, long forms included, to an Environment
func ParseEnvironment(value string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", value)
}

// Database drivers accepted by DB_DRIVER
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// NacosConfig holds the service registry settings
type NacosConfig struct {
	Enabled      bool
	Server       string // host:port of the Nacos server
	ServiceName  string
	Namespace    string
	Group        string
	AdvertiseIP  string // IP registered for this instance, defaults to ADDRESS
	BeatInterval time.Duration
	RetryMax     int
}

// RateLimitConfig holds the per-client token bucket settings.
// A cost of 0 makes the route free.
type RateLimitConfig struct {
	Rate        float64 // tokens refilled per second
	Capacity    int64
	ListingCost int64 // full table listings
	LookupCost  int64 // some_* keyed lookups
	ResolveCost int64 // one_disease_medical_drug
	HealthCost  int64
}

// DefaultRateLimit returns the bucket settings used when no override is set.
// Callers are a handful of upstream services found through the registry.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Rate:        100,
		Capacity:    2000,
		ListingCost: 100,
		LookupCost:  1,
		ResolveCost: 1,
		HealthCost:  1,
	}
}

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	// Optional caps on list parameters, 0 disables them
	MaxKeyLength      int // runes per key
	MaxKeysPerRequest int

	RateLimit RateLimitConfig

	DBDriver string
	DBDSN    string

	DataDir            string
	TreatmentItemsFile string // relative to DataDir
	DrugPricesFile     string // relative to DataDir
	DiseasesFile       string // relative to DataDir
	ReloadAt           string // "HH:MM;HH:MM" daily reload times, empty disables

	Nacos NacosConfig
}

var reloadAtRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(;([01]\d|2[0-3]):[0-5]\d)*$`)

// LoadDotEnv loads a .env file from the working directory, or from the
// executable directory as a fallback. A missing file is not an error.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}

	ex, exErr := os.Executable()
	if exErr != nil {
		return nil
	}
	err = godotenv.Load(filepath.Join(filepath.Dir(ex), ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}
	return nil
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	address := getEnvWithDefault("ADDRESS", "127.0.0.1")

	env, err := ParseEnvironment(getEnvWithDefault("ENV", string(EnvDevelopment)))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "5000"),
		Address:           address,
		Env:               env,
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB default
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default
		MaxKeyLength:      getIntEnvWithDefault("MAX_KEY_LENGTH", 0),
		MaxKeysPerRequest: getIntEnvWithDefault("MAX_KEYS_PER_REQUEST", 0),

		RateLimit: loadRateLimit(),

		DBDriver: strings.ToLower(getEnvWithDefault("DB_DRIVER", DriverSQLite)),
		DBDSN:    getEnvWithDefault("DB_DSN", "medical.db"),

		DataDir:            getEnvWithDefault("DATA_DIR", "data"),
		TreatmentItemsFile: getEnvWithDefault("TREATMENT_ITEMS_FILE", filepath.Join("医院A", "PublicizeCostData.csv")),
		DrugPricesFile:     getEnvWithDefault("DRUG_PRICES_FILE", filepath.Join("医院A", "PublicizeDrugPriceData.csv")),
		DiseasesFile:       getEnvWithDefault("DISEASES_FILE", filepath.Join("卫健委", "DiseaseInfo.csv")),
		ReloadAt:           os.Getenv("RELOAD_AT"),

		Nacos: NacosConfig{
			Enabled:      getBoolEnvWithDefault("NACOS_ENABLED", true),
			Server:       getEnvWithDefault("NACOS_SERVER", "127.0.0.1:8848"),
			ServiceName:  getEnvWithDefault("NACOS_SERVICE_NAME", "medical-data-service"),
			Namespace:    os.Getenv("NACOS_NAMESPACE"),
			Group:        os.Getenv("NACOS_GROUP"),
			AdvertiseIP:  getEnvWithDefault("NACOS_ADVERTISE_IP", address),
			BeatInterval: getDurationEnvWithDefault("NACOS_BEAT_INTERVAL", 5*time.Second),
			RetryMax:     getIntEnvWithDefault("NACOS_RETRY_MAX", 2),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadRateLimit() RateLimitConfig {
	d := DefaultRateLimit()
	return RateLimitConfig{
		Rate:        getFloatEnvWithDefault("RATE_LIMIT_RATE", d.Rate),
		Capacity:    getInt64EnvWithDefault("RATE_LIMIT_CAPACITY", d.Capacity),
		ListingCost: getInt64EnvWithDefault("RATE_LIMIT_LISTING_COST", d.ListingCost),
		LookupCost:  getInt64EnvWithDefault("RATE_LIMIT_LOOKUP_COST", d.LookupCost),
		ResolveCost: getInt64EnvWithDefault("RATE_LIMIT_RESOLVE_COST", d.ResolveCost),
		HealthCost:  getInt64EnvWithDefault("RATE_LIMIT_HEALTH_COST", d.HealthCost),
	}
}

// TreatmentItemsPath returns the full path of the treatment items CSV
func (c *Config) TreatmentItemsPath() string {
	return filepath.Join(c.DataDir, c.TreatmentItemsFile)
}

// DrugPricesPath returns the full path of the drug prices CSV
func (c *Config) DrugPricesPath() string {
	return filepath.Join(c.DataDir, c.DrugPricesFile)
}

// DiseasesPath returns the full path of the disease info CSV
func (c *Config) DiseasesPath() string {
	return filepath.Join(c.DataDir, c.DiseasesFile)
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if cfg.MaxKeyLength < 0 {
		return fmt.Errorf("invalid MAX_KEY_LENGTH: must not be negative, got: %d", cfg.MaxKeyLength)
	}

	if cfg.MaxKeysPerRequest < 0 {
		return fmt.Errorf("invalid MAX_KEYS_PER_REQUEST: must not be negative, got: %d", cfg.MaxKeysPerRequest)
	}

	if err := validateRateLimit(cfg.RateLimit); err != nil {
		return fmt.Errorf("invalid rate limit settings: %w", err)
	}

	if err := validateDatabase(cfg.DBDriver, cfg.DBDSN); err != nil {
		return fmt.Errorf("invalid database settings: %w", err)
	}

	if cfg.ReloadAt != "" && !reloadAtRegex.MatchString(cfg.ReloadAt) {
		return fmt.Errorf("invalid RELOAD_AT: expected HH:MM[;HH:MM...], got: %s", cfg.ReloadAt)
	}

	if cfg.Nacos.Enabled {
		if err := validateNacos(cfg.Nacos); err != nil {
			return fmt.Errorf("invalid Nacos settings: %w", err)
		}
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" || address == "0.0.0.0" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env Environment) error {
	if env == "" {
		return fmt.Errorf("ENV cannot be empty")
	}

	validEnvs := []Environment{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}
	for _, validEnv := range validEnvs {
		if env == validEnv {
			return nil
		}
	}

	return fmt.Errorf("ENV must be one of: %v, got: %s", validEnvs, env)
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateDatabase validates DB_DRIVER and DB_DSN
func validateDatabase(driver, dsn string) error {
	if driver != DriverSQLite && driver != DriverPostgres {
		return fmt.Errorf("DB_DRIVER must be one of: [%s %s], got: %s", DriverSQLite, DriverPostgres, driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("DB_DSN cannot be empty")
	}
	return nil
}

// validateRateLimit validates the RATE_LIMIT_* variables
func validateRateLimit(rl RateLimitConfig) error {
	if rl.Rate <= 0 {
		return fmt.Errorf("RATE_LIMIT_RATE must be positive, got: %g", rl.Rate)
	}
	if rl.Capacity <= 0 {
		return fmt.Errorf("RATE_LIMIT_CAPACITY must be positive, got: %d", rl.Capacity)
	}
	costs := []struct {
		name string
		cost int64
	}{
		{"RATE_LIMIT_LISTING_COST", rl.ListingCost},
		{"RATE_LIMIT_LOOKUP_COST", rl.LookupCost},
		{"RATE_LIMIT_RESOLVE_COST", rl.ResolveCost},
		{"RATE_LIMIT_HEALTH_COST", rl.HealthCost},
	}
	for _, c := range costs {
		if c.cost < 0 || c.cost > rl.Capacity {
			return fmt.Errorf("%s must be between 0 and RATE_LIMIT_CAPACITY (%d), got: %d", c.name, rl.Capacity, c.cost)
		}
	}
	return nil
}

// validateNacos validates the registry settings
func validateNacos(n NacosConfig) error {
	if _, _, err := net.SplitHostPort(n.Server); err != nil {
		return fmt.Errorf("NACOS_SERVER must be host:port, got: %s", n.Server)
	}
	if n.ServiceName == "" {
		return fmt.Errorf("NACOS_SERVICE_NAME cannot be empty")
	}
	if n.AdvertiseIP == "" {
		return fmt.Errorf("NACOS_ADVERTISE_IP cannot be empty")
	}
	if n.BeatInterval < time.Second || n.BeatInterval > time.Minute {
		return fmt.Errorf("NACOS_BEAT_INTERVAL must be between 1s and 1m, got: %s", n.BeatInterval)
	}
	if n.RetryMax < 0 || n.RetryMax > 10 {
		return fmt.Errorf("NACOS_RETRY_MAX must be between 0 and 10, got: %d", n.RetryMax)
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"MAX_KEY_LENGTH",
		"MAX_KEYS_PER_REQUEST",
		"RATE_LIMIT_RATE",
		"RATE_LIMIT_CAPACITY",
		"RATE_LIMIT_LISTING_COST",
		"RATE_LIMIT_LOOKUP_COST",
		"RATE_LIMIT_RESOLVE_COST",
		"RATE_LIMIT_HEALTH_COST",
		"DB_DRIVER",
		"DB_DSN",
		"DATA_DIR",
		"TREATMENT_ITEMS_FILE",
		"DRUG_PRICES_FILE",
		"DISEASES_FILE",
		"RELOAD_AT",
		"NACOS_ENABLED",
		"NACOS_SERVER",
		"NACOS_SERVICE_NAME",
		"NACOS_NAMESPACE",
		"NACOS_GROUP",
		"NACOS_ADVERTISE_IP",
		"NACOS_BEAT_INTERVAL",
		"NACOS_RETRY_MAX",
	}
}
