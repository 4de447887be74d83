// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for courier.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by Config.Transport.
const (
	TransportSMTP     = "smtp"
	TransportSES      = "ses"
	TransportGraph    = "graph"
	TransportResend   = "resend"
	TransportSendGrid = "sendgrid"
	TransportStdout   = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Transport string          `yaml:"transport"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	SES       SESConfig       `yaml:"ses"`
	Graph     GraphConfig     `yaml:"graph"`
	Resend    APIKeyConfig    `yaml:"resend"`
	SendGrid  APIKeyConfig    `yaml:"sendgrid"`
	Stdout    StdoutConfig    `yaml:"stdout"`
	Templates TemplatesConfig `yaml:"templates"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SMTPConfig holds the SMTP gateway connection settings.
type SMTPConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Auth               string        `yaml:"auth"`
	TLSMode            string        `yaml:"tls_mode"`
	CAFile             string        `yaml:"ca_file"`
	ClientCertFile     string        `yaml:"client_cert_file"`
	ClientKeyFile      string        `yaml:"client_key_file"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	LocalName          string        `yaml:"local_name"`
	Timeout            time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES configuration. Empty credentials fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// APIKeyConfig holds the credentials of an HTTP email API.
type APIKeyConfig struct {
	APIKey string `yaml:"api_key"`
}

// StdoutConfig holds settings of the stdout transport.
type StdoutConfig struct {
	// Raw prints the full MIME document instead of a summary.
	Raw bool `yaml:"raw"`
}

// TemplatesConfig holds template renderer settings.
type TemplatesConfig struct {
	Dir      string `yaml:"dir"`
	Layout   string `yaml:"layout"`
	Sanitize bool   `yaml:"sanitize"`
}

// DispatchConfig holds dispatcher settings.
type DispatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// DefaultsConfig holds values applied to messages that leave them out.
type DefaultsConfig struct {
	From         string `yaml:"from"`
	Organization string `yaml:"organization"`
	ReplyTo      string `yaml:"reply_to"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
// Environment variables always take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected transport has what it needs.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportSMTP:
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("smtp transport requires SMTP_HOST"))
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid SMTP port %d", c.SMTP.Port))
		}
		if (c.SMTP.ClientCertFile == "") != (c.SMTP.ClientKeyFile == "") {
			errs = append(errs, errors.New("SMTP_CLIENT_CERT_FILE and SMTP_CLIENT_KEY_FILE must be set together"))
		}
		if (c.SMTP.Username == "") != (c.SMTP.Password == "") {
			errs = append(errs, errors.New("SMTP_USERNAME and SMTP_PASSWORD must be set together"))
		}
	case TransportSES:
		if c.SES.Region == "" {
			errs = append(errs, errors.New("ses transport requires SES_REGION"))
		}
	case TransportGraph:
		if !c.GraphConfigured() {
			errs = append(errs, errors.New("graph transport requires GRAPH_TENANT_ID, GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET"))
		}
	case TransportResend:
		if c.Resend.APIKey == "" {
			errs = append(errs, errors.New("resend transport requires RESEND_API_KEY"))
		}
	case TransportSendGrid:
		if c.SendGrid.APIKey == "" {
			errs = append(errs, errors.New("sendgrid transport requires SENDGRID_API_KEY"))
		}
	case TransportStdout:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	if c.Dispatch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("dispatch concurrency must be at least 1, got %d", c.Dispatch.Concurrency))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// GraphConfigured returns true if the Graph API client credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != ""
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Transport = TransportStdout
	c.SMTP.Port = 587
	c.SMTP.Auth = "plain"
	c.SMTP.TLSMode = "starttls"
	c.SMTP.Timeout = 30 * time.Second
	c.Templates.Dir = "templates"
	c.Dispatch.Concurrency = 1
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	setString("SMTP_HOST", &c.SMTP.Host)
	setInt("SMTP_PORT", &c.SMTP.Port)
	setString("SMTP_USERNAME", &c.SMTP.Username)
	setString("SMTP_PASSWORD", &c.SMTP.Password)
	setString("SMTP_AUTH", &c.SMTP.Auth)
	setString("SMTP_TLS_MODE", &c.SMTP.TLSMode)
	setString("SMTP_CA_FILE", &c.SMTP.CAFile)
	setString("SMTP_CLIENT_CERT_FILE", &c.SMTP.ClientCertFile)
	setString("SMTP_CLIENT_KEY_FILE", &c.SMTP.ClientKeyFile)
	setBool("SMTP_INSECURE_SKIP_VERIFY", &c.SMTP.InsecureSkipVerify)
	setString("SMTP_LOCAL_NAME", &c.SMTP.LocalName)
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SMTP_TIMEOUT: %w", err))
		} else {
			c.SMTP.Timeout = d
		}
	}

	setString("SES_REGION", &c.SES.Region)
	setString("SES_ACCESS_KEY_ID", &c.SES.AccessKeyID)
	setString("SES_SECRET_ACCESS_KEY", &c.SES.SecretAccessKey)
	setString("SES_CONFIGURATION_SET", &c.SES.ConfigurationSet)

	setString("GRAPH_TENANT_ID", &c.Graph.TenantID)
	setString("GRAPH_CLIENT_ID", &c.Graph.ClientID)
	setString("GRAPH_CLIENT_SECRET", &c.Graph.ClientSecret)
	setString("GRAPH_SENDER", &c.Graph.Sender)

	setString("RESEND_API_KEY", &c.Resend.APIKey)
	setString("SENDGRID_API_KEY", &c.SendGrid.APIKey)
	setBool("STDOUT_RAW", &c.Stdout.Raw)

	setString("TEMPLATE_DIR", &c.Templates.Dir)
	setString("TEMPLATE_LAYOUT", &c.Templates.Layout)
	setBool("TEMPLATE_SANITIZE", &c.Templates.Sanitize)

	setInt("DISPATCH_CONCURRENCY", &c.Dispatch.Concurrency)

	setString("MAIL_FROM", &c.Defaults.From)
	setString("MAIL_ORGANIZATION", &c.Defaults.Organization)
	setString("MAIL_REPLY_TO", &c.Defaults.ReplyTo)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	return errors.Join(errs...)
}
