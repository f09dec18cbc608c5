package cfg

import (
	"flag"
	"math"
	"slices"
	"strings"
	"testing"
	"time"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		DBMaxConns:            10,
		SlowQuery:             250 * time.Millisecond,
		KafkaTopic:            "ventwatch.action-log",
	}
}

func with(mut func(c *Config)) Config {
	c := validBase()
	mut(&c)
	return c
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, want 10", c.DBMaxConns)
	}
	if c.SlowQuery != 250*time.Millisecond {
		t.Errorf("SlowQuery = %s, want 250ms", c.SlowQuery)
	}
	if c.KafkaTopic != "ventwatch.action-log" {
		t.Errorf("KafkaTopic = %q", c.KafkaTopic)
	}
	if c.ArchivePrefix != "ventwatch" {
		t.Errorf("ArchivePrefix = %q", c.ArchivePrefix)
	}
	if c.DatabaseURL != "" || c.APIToken != "" || c.KafkaBrokers != "" || c.ArchiveBucket != "" {
		t.Errorf("optional integrations enabled by default: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestRegisterFlags_SlowQueryUsage(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	f := fs.Lookup("db-slow-query")
	if f == nil {
		t.Fatal("db-slow-query flag not registered")
	}
	if !strings.Contains(f.Usage, "every query") {
		t.Errorf("usage %q does not describe what 0 does", f.Usage)
	}
	if strings.Contains(f.Usage, "0 = off") {
		t.Errorf("usage %q claims 0 disables query logging", f.Usage)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-api-token", "0123456789abcdef",
		"-database-url", "postgres://localhost/ventwatch",
		"-db-slow-query", "1s",
		"-assets-file", "data/assets.csv",
		"-seed-events-file", "data/events.xlsx",
		"-kafka-brokers", "k1:9092, k2:9092",
		"-archive-bucket", "audit",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.APIToken != "0123456789abcdef" {
		t.Errorf("APIToken = %q", c.APIToken)
	}
	if c.DatabaseURL != "postgres://localhost/ventwatch" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.SlowQuery != time.Second {
		t.Errorf("SlowQuery = %s, want 1s", c.SlowQuery)
	}
	if c.AssetsFile != "data/assets.csv" || c.SeedEventsFile != "data/events.xlsx" {
		t.Errorf("seed files = %q, %q", c.AssetsFile, c.SeedEventsFile)
	}
	if got := c.Brokers(); !slices.Equal(got, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("Brokers() = %v", got)
	}
	if c.ArchiveBucket != "audit" {
		t.Errorf("ArchiveBucket = %q", c.ArchiveBucket)
	}
}

func TestBrokers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"k1:9092", []string{"k1:9092"}},
		{" k1:9092 ,, k2:9092 ,", []string{"k1:9092", "k2:9092"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		c := Config{KafkaBrokers: tt.raw}
		if got := c.Brokers(); !slices.Equal(got, tt.want) {
			t.Errorf("Brokers(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string // substrings that must appear in error message
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort, c.DBMaxConns, c.SlowQuery = 1, 2, 1, 1, 0
			}),
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: with(func(c *Config) {
				c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort, c.DBMaxConns = 299, 300, 65535, 1000
			}),
			wantErr: false,
		},
		{
			name: "all integrations configured",
			cfg: with(func(c *Config) {
				c.APIToken = "0123456789abcdef"
				c.DatabaseURL = "postgres://localhost/ventwatch"
				c.SlackWebhookURL = "https://hooks.slack.com/services/T000/B000/XXX"
				c.KafkaBrokers = "k1:9092"
				c.ArchiveBucket = "audit"
				c.ArchiveEndpoint = "http://minio:9000"
			}),
			wantErr: false,
		},
		// DrainSeconds boundaries
		{
			name:      "drain zero",
			cfg:       with(func(c *Config) { c.DrainSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain negative",
			cfg:       with(func(c *Config) { c.DrainSeconds = -1 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 }),
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:    "drain at upper bound",
			cfg:     with(func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 300, 300 }),
			wantErr: true, // budget must be greater than drain
		},
		// ShutdownBudgetSeconds boundaries
		{
			name:      "budget zero",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 0 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 301 }),
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		// Cross-field: budget vs drain
		{
			name:      "budget equals drain",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 60 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "budget less than drain",
			cfg:       with(func(c *Config) { c.ShutdownBudgetSeconds = 30 }),
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:    "budget is drain plus one",
			cfg:     with(func(c *Config) { c.ShutdownBudgetSeconds = 61 }),
			wantErr: false,
		},
		// APIPort boundaries
		{
			name:      "port zero",
			cfg:       with(func(c *Config) { c.APIPort = 0 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       with(func(c *Config) { c.APIPort = 65536 }),
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		// Optional string fields
		{
			name:      "short api token",
			cfg:       with(func(c *Config) { c.APIToken = "short" }),
			wantErr:   true,
			errSubstr: []string{"API_TOKEN"},
		},
		{
			name:      "db max conns zero",
			cfg:       with(func(c *Config) { c.DBMaxConns = 0 }),
			wantErr:   true,
			errSubstr: []string{"DB_MAX_CONNS"},
		},
		{
			name:      "negative slow query",
			cfg:       with(func(c *Config) { c.SlowQuery = -time.Second }),
			wantErr:   true,
			errSubstr: []string{"DB_SLOW_QUERY"},
		},
		{
			name:      "plain http slack webhook",
			cfg:       with(func(c *Config) { c.SlackWebhookURL = "http://hooks.slack.com/x" }),
			wantErr:   true,
			errSubstr: []string{"SLACK_WEBHOOK_URL"},
		},
		{
			name:      "relative slack webhook",
			cfg:       with(func(c *Config) { c.SlackWebhookURL = "/services/x" }),
			wantErr:   true,
			errSubstr: []string{"SLACK_WEBHOOK_URL"},
		},
		{
			name:      "kafka brokers without topic",
			cfg:       with(func(c *Config) { c.KafkaBrokers, c.KafkaTopic = "k1:9092", " " }),
			wantErr:   true,
			errSubstr: []string{"KAFKA_TOPIC"},
		},
		{
			name:    "empty topic without brokers",
			cfg:     with(func(c *Config) { c.KafkaTopic = "" }),
			wantErr: false,
		},
		{
			name:      "archive endpoint without bucket",
			cfg:       with(func(c *Config) { c.ArchiveEndpoint = "http://minio:9000" }),
			wantErr:   true,
			errSubstr: []string{"ARCHIVE_BUCKET"},
		},
		// Error accumulation: all fields invalid
		{
			name: "all fields invalid",
			cfg: Config{
				APIToken:        "x",
				SlowQuery:       -1,
				SlackWebhookURL: "ftp://x",
				KafkaBrokers:    "k1",
				ArchiveEndpoint: "http://minio",
			},
			wantErr: true,
			errSubstr: []string{
				"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "API_TOKEN", "DB_MAX_CONNS",
				"DB_SLOW_QUERY", "SLACK_WEBHOOK_URL", "KAFKA_TOPIC", "ARCHIVE_BUCKET",
			},
		},
		// Extreme values
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	// Seeds: defaults, boundaries, extremes
	seeds := []struct {
		drain, budget, port int
		token, brokers      string
	}{
		{60, 90, 8080, "", ""},
		{1, 2, 1, "0123456789abcdef", "k1:9092"},
		{299, 300, 65535, "", ""},
		{0, 0, 0, "", ""},
		{-1, -1, -1, "short", ""},
		{300, 300, 65535, "", ""},
		{301, 302, 65536, "", ""},
		{150, 100, 8080, "", ""},
		{math.MinInt32, math.MinInt32, math.MinInt32, "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.token, s.brokers)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port int, token, brokers string) {
		c := validBase()
		c.DrainSeconds = drain
		c.ShutdownBudgetSeconds = budget
		c.APIPort = port
		c.APIToken = token
		c.KafkaBrokers = brokers
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		tokenOK := token == "" || len(token) >= minAPITokenLen

		allValid := drainOK && budgetOK && portOK && crossOK && tokenOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
