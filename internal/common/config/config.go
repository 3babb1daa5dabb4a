// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App              AppConfig               `mapstructure:"app"`
	Logging          LoggingConfig           `mapstructure:"logging"`
	AutomationServer AutomationServerConfig  `mapstructure:"automation_server"`
	Queue            QueueConfig             `mapstructure:"queue"`
	Credentials      CredentialsConfig       `mapstructure:"credentials"`
	Nexus            NexusConfig             `mapstructure:"nexus"`
	Tracking         TrackingConfig          `mapstructure:"tracking"`
	Organizations    OrganizationsConfig     `mapstructure:"organizations"`
	Notifications    NotificationConfig      `mapstructure:"notifications"`
	Metrics          MetricsConfig           `mapstructure:"metrics"`
	Workers          map[string]WorkerConfig `mapstructure:"workers"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// AutomationServerConfig points at the automation server that owns the
// work queue and the credential store.
type AutomationServerConfig struct {
	URL               string `mapstructure:"url"`
	Token             string `mapstructure:"token"`
	WorkqueueID       string `mapstructure:"workqueue_id"`
	WorkqueueOverride string `mapstructure:"workqueue_override"`
	Timeout           int    `mapstructure:"timeout"` // milliseconds
}

// EffectiveWorkqueueID returns the override when set.
func (a AutomationServerConfig) EffectiveWorkqueueID() string {
	if a.WorkqueueOverride != "" {
		return a.WorkqueueOverride
	}
	return a.WorkqueueID
}

const (
	QueueBackendATS   = "ats"
	QueueBackendRedis = "redis"
	QueueBackendZeebe = "zeebe"
)

type QueueConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
	Zeebe   ZeebeConfig `mapstructure:"zeebe"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Name     string `mapstructure:"name"` // queue name, used as key prefix
}

type ZeebeConfig struct {
	GatewayAddress         string `mapstructure:"gateway_address"`
	UsePlaintextConnection bool   `mapstructure:"use_plaintext_connection"`
	MessageName            string `mapstructure:"message_name"`
	JobType                string `mapstructure:"job_type"`
	WorkerName             string `mapstructure:"worker_name"`
	JobTimeout             int    `mapstructure:"job_timeout"`     // milliseconds
	RequestTimeout         int    `mapstructure:"request_timeout"` // milliseconds
	MessageTTL             int    `mapstructure:"message_ttl"`     // milliseconds
}

const (
	CredentialSourceATS    = "ats"
	CredentialSourceStatic = "static"
)

// CredentialsConfig names the credentials to resolve and where from.
type CredentialsConfig struct {
	Source   string                      `mapstructure:"source"`
	Nexus    string                      `mapstructure:"nexus"`
	Tracking string                      `mapstructure:"tracking"`
	Static   map[string]StaticCredential `mapstructure:"static"`
}

type StaticCredential struct {
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Data     map[string]string `mapstructure:"data"`
}

// LookupStatic finds a static credential by name. Viper lowercases map
// keys, so the lookup is case-insensitive.
func (c CredentialsConfig) LookupStatic(name string) (StaticCredential, bool) {
	if cred, ok := c.Static[name]; ok {
		return cred, true
	}
	cred, ok := c.Static[strings.ToLower(name)]
	return cred, ok
}

type NexusConfig struct {
	BaseURL  string `mapstructure:"base_url"`  // may contain {instance}
	TokenURL string `mapstructure:"token_url"` // may contain {instance}
	Timeout  int    `mapstructure:"timeout"`   // milliseconds
}

// ResolveBaseURL substitutes the instance into the base URL template.
func (n NexusConfig) ResolveBaseURL(instance string) string {
	return strings.TrimSuffix(strings.ReplaceAll(n.BaseURL, "{instance}", instance), "/")
}

// ResolveTokenURL substitutes the instance into the token URL template.
func (n NexusConfig) ResolveTokenURL(instance string) string {
	return strings.ReplaceAll(n.TokenURL, "{instance}", instance)
}

const (
	TrackingBackendPostgres      = "postgres"
	TrackingBackendElasticsearch = "elasticsearch"
	TrackingBackendNone          = "none"
)

type TrackingConfig struct {
	Backend       string              `mapstructure:"backend"`
	ProcessName   string              `mapstructure:"process_name"`
	TaskLabel     string              `mapstructure:"task_label"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// OrganizationsConfig is the eligibility boundary shared by both phases.
type OrganizationsConfig struct {
	Approved            []string `mapstructure:"approved"`
	ApprovedFile        string   `mapstructure:"approved_file"`
	ExcludedIdentifiers []string `mapstructure:"excluded_identifiers"`
	IdentifierType      string   `mapstructure:"identifier_type"`
}

// NotificationConfig holds settings for the failure summary notifier.
type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`
	AWS     struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// WorkerConfig holds the settings applicable to each phase.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds, per call
}
