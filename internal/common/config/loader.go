// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultExcludedIdentifiers are test citizens that must never be touched.
var DefaultExcludedIdentifiers = []string{
	"221354-1242",
	"010858-9995",
	"131313-1313",
	"251248-9996",
	"050505-9996",
}

const (
	DefaultNexusCredential    = "KMD Nexus - produktion"
	DefaultTrackingCredential = "Odense SQL Server"
	DefaultTaskLabel          = "Angivelse af borgers primære organisation"
	DefaultNexusBaseURL       = "https://{instance}.api.nexus.kmd.dk/api/core/mobile/{instance}/v2"
	DefaultNexusTokenURL      = "https://iam.nexus.kmd.dk/authx/realms/{instance}/protocol/openid-connect/token"
)

// Load reads config.yaml (and config.<env>.yaml) from the search path.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up from the working directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills values from the automation server's
// conventional environment variables when the config left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.AutomationServer.URL == "" {
		if val := os.Getenv("ATS_URL"); val != "" {
			cfg.AutomationServer.URL = val
		}
	}
	if cfg.AutomationServer.Token == "" {
		if val := os.Getenv("ATS_TOKEN"); val != "" {
			cfg.AutomationServer.Token = val
		}
	}
	if cfg.AutomationServer.WorkqueueID == "" {
		if val := os.Getenv("ATS_WORKQUEUE"); val != "" {
			cfg.AutomationServer.WorkqueueID = val
		}
	}
	if cfg.AutomationServer.WorkqueueOverride == "" {
		if val := os.Getenv("ATS_WORKQUEUE_OVERRIDE"); val != "" {
			cfg.AutomationServer.WorkqueueOverride = val
		}
	}
	cfg.AutomationServer.URL = strings.TrimSuffix(cfg.AutomationServer.URL, "/")

	if cfg.Tracking.Postgres.Password == "" {
		if val := os.Getenv("TRACKING_DB_PASSWORD"); val != "" {
			cfg.Tracking.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "primary-organization"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.AutomationServer.Timeout == 0 {
		cfg.AutomationServer.Timeout = 30000
	}

	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = QueueBackendATS
	}
	if cfg.Queue.Redis.Name == "" {
		cfg.Queue.Redis.Name = cfg.App.Name
	}
	if cfg.Queue.Zeebe.MessageName == "" {
		cfg.Queue.Zeebe.MessageName = "primary-organization.work-item"
	}
	if cfg.Queue.Zeebe.JobType == "" {
		cfg.Queue.Zeebe.JobType = "primary-organization.set"
	}
	if cfg.Queue.Zeebe.WorkerName == "" {
		cfg.Queue.Zeebe.WorkerName = cfg.App.Name
	}
	if cfg.Queue.Zeebe.JobTimeout == 0 {
		cfg.Queue.Zeebe.JobTimeout = 300000
	}
	if cfg.Queue.Zeebe.RequestTimeout == 0 {
		cfg.Queue.Zeebe.RequestTimeout = 10000
	}
	if cfg.Queue.Zeebe.MessageTTL == 0 {
		cfg.Queue.Zeebe.MessageTTL = 86400000
	}

	if cfg.Credentials.Source == "" {
		cfg.Credentials.Source = CredentialSourceATS
	}
	if cfg.Credentials.Nexus == "" {
		cfg.Credentials.Nexus = DefaultNexusCredential
	}
	if cfg.Credentials.Tracking == "" {
		cfg.Credentials.Tracking = DefaultTrackingCredential
	}

	if cfg.Nexus.BaseURL == "" {
		cfg.Nexus.BaseURL = DefaultNexusBaseURL
	}
	if cfg.Nexus.TokenURL == "" {
		cfg.Nexus.TokenURL = DefaultNexusTokenURL
	}
	if cfg.Nexus.Timeout == 0 {
		cfg.Nexus.Timeout = 30000
	}

	if cfg.Tracking.Backend == "" {
		cfg.Tracking.Backend = TrackingBackendPostgres
	}
	if cfg.Tracking.ProcessName == "" {
		cfg.Tracking.ProcessName = cfg.App.Name
	}
	if cfg.Tracking.TaskLabel == "" {
		cfg.Tracking.TaskLabel = DefaultTaskLabel
	}
	if cfg.Tracking.Postgres.Port == 0 {
		cfg.Tracking.Postgres.Port = 5432
	}
	if cfg.Tracking.Postgres.MaxConnections == 0 {
		cfg.Tracking.Postgres.MaxConnections = 5
	}
	if cfg.Tracking.Postgres.MaxIdle == 0 {
		cfg.Tracking.Postgres.MaxIdle = 1
	}
	if cfg.Tracking.Postgres.SSLMode == "" {
		cfg.Tracking.Postgres.SSLMode = "disable"
	}
	if cfg.Tracking.Elasticsearch.Index == "" {
		cfg.Tracking.Elasticsearch.Index = "tracking-task-events"
	}

	if cfg.Organizations.ExcludedIdentifiers == nil {
		cfg.Organizations.ExcludedIdentifiers = append([]string(nil), DefaultExcludedIdentifiers...)
	}
	if cfg.Organizations.IdentifierType == "" {
		cfg.Organizations.IdentifierType = "cpr"
	}

	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = "eu-west-1"
	}

	if cfg.Workers == nil {
		cfg.Workers = make(map[string]WorkerConfig)
	}
	for key, worker := range cfg.Workers {
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Queue.Backend {
	case QueueBackendATS:
		if cfg.AutomationServer.URL == "" {
			return fmt.Errorf("automation_server.url (or ATS_URL) is required for the ats queue backend")
		}
		if cfg.AutomationServer.EffectiveWorkqueueID() == "" {
			return fmt.Errorf("automation_server.workqueue_id (or ATS_WORKQUEUE) is required for the ats queue backend")
		}
	case QueueBackendRedis:
		if cfg.Queue.Redis.Address == "" {
			return fmt.Errorf("queue.redis.address is required for the redis queue backend")
		}
	case QueueBackendZeebe:
		if cfg.Queue.Zeebe.GatewayAddress == "" {
			return fmt.Errorf("queue.zeebe.gateway_address is required for the zeebe queue backend")
		}
	default:
		return fmt.Errorf("queue.backend must be one of ats, redis, zeebe (got %q)", cfg.Queue.Backend)
	}

	switch cfg.Credentials.Source {
	case CredentialSourceATS:
		if cfg.AutomationServer.URL == "" {
			return fmt.Errorf("automation_server.url (or ATS_URL) is required for ats credentials")
		}
	case CredentialSourceStatic:
		if _, ok := cfg.Credentials.LookupStatic(cfg.Credentials.Nexus); !ok {
			return fmt.Errorf("credentials.static is missing %q", cfg.Credentials.Nexus)
		}
	default:
		return fmt.Errorf("credentials.source must be ats or static (got %q)", cfg.Credentials.Source)
	}

	switch cfg.Tracking.Backend {
	case TrackingBackendPostgres:
		if cfg.Tracking.Postgres.Host == "" {
			return fmt.Errorf("tracking.postgres.host is required")
		}
		if cfg.Tracking.Postgres.Database == "" {
			return fmt.Errorf("tracking.postgres.database is required")
		}
	case TrackingBackendElasticsearch:
		if len(cfg.Tracking.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("tracking.elasticsearch.addresses is required")
		}
	case TrackingBackendNone:
	default:
		return fmt.Errorf("tracking.backend must be one of postgres, elasticsearch, none (got %q)", cfg.Tracking.Backend)
	}

	if cfg.Notifications.Enabled {
		if cfg.Notifications.Email.Enabled && (cfg.Notifications.Email.FromEmail == "" || len(cfg.Notifications.Email.To) == 0) {
			return fmt.Errorf("notifications.email requires from_email and to")
		}
		if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
			return fmt.Errorf("notifications.sns.topic_arn is required")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled: true,
		Timeout: 30000,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
