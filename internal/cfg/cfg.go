package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// minAPITokenLen is the shortest accepted API token when one is configured.
const minAPITokenLen = 16

// Config holds the application-specific settings. It follows the common
// cfg.Registerable and cfg.Validatable interfaces of the go-core packages.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	DatabaseURL    string
	DBMaxConns     int
	SlowQuery      time.Duration
	AssetsFile     string
	SeedEventsFile string

	SlackWebhookURL string

	KafkaBrokers string
	KafkaTopic   string

	ArchiveBucket   string
	ArchivePrefix   string
	ArchiveEndpoint string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on state-changing API routes (empty = no auth)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 10, "maximum PostgreSQL pool connections (1..1000)")
	fs.DurationVar(&c.SlowQuery, "db-slow-query", 250*time.Millisecond, "queries slower than this are logged at warn level (0 = log every query at info level)")
	fs.StringVar(&c.AssetsFile, "assets-file", "", "CSV file of site assets loaded at startup")
	fs.StringVar(&c.SeedEventsFile, "seed-events-file", "", "CSV or XLSX file of detections imported at startup")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for high-urgency import notifications")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for the action log stream (empty = disabled)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "ventwatch.action-log", "Kafka topic for action log entries")
	fs.StringVar(&c.ArchiveBucket, "archive-bucket", "", "S3 bucket for audit snapshots of reported events (empty = disabled)")
	fs.StringVar(&c.ArchivePrefix, "archive-prefix", "ventwatch", "S3 key prefix for audit snapshots")
	fs.StringVar(&c.ArchiveEndpoint, "archive-endpoint", "", "S3-compatible endpoint override (empty = AWS)")
}

// Brokers returns the configured Kafka brokers, trimmed, skipping empties.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.APIToken != "" && len(c.APIToken) < minAPITokenLen {
		errs = append(errs, fmt.Errorf("API_TOKEN must be at least %d characters", minAPITokenLen))
	}

	if c.DBMaxConns <= 0 || c.DBMaxConns > 1000 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 1..1000)", c.DBMaxConns))
	}
	if c.SlowQuery < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY %s (must not be negative)", c.SlowQuery))
	}

	if c.SlackWebhookURL != "" {
		if u, err := url.Parse(c.SlackWebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, errors.New("SLACK_WEBHOOK_URL must be an absolute https URL"))
		}
	}

	// Kafka needs a topic once brokers are set
	if len(c.Brokers()) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if c.ArchiveEndpoint != "" && c.ArchiveBucket == "" {
		errs = append(errs, errors.New("ARCHIVE_ENDPOINT is set but ARCHIVE_BUCKET is empty"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
