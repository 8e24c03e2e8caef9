package batchworker

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// FileConfig describes one configured output file (§6).
type FileConfig struct {
	FileID          string `json:"fileId"`
	FileNamePattern string `json:"fileNamePattern"`
	TranslatorID    string `json:"translatorId"`
}

// BusConfig holds message bus connection parameters (§6).
type BusConfig struct {
	BootstrapServers []string `json:"bootstrapServers"`
	Topic            string   `json:"topic"`
	EventType        string   `json:"eventType"`
	ConsumerGroup    string   `json:"consumerGroup"`
	TimeoutMs        int      `json:"timeoutMs"`
}

// SQLConfig holds relational-view extraction parameters (§6). Columns is a
// host-wiring addition beyond §6's literal field list: the view's full
// column set, used both to select specific columns from the view and, in
// order, to render delimited formats (e.g. CSV) deterministically. An empty
// Columns selects every column of the view ("SELECT *").
type SQLConfig struct {
	ConnectionString string   `json:"connectionString"`
	ViewName         string   `json:"viewName"`
	OrderBy          string   `json:"orderBy"`
	KeyColumn        string   `json:"keyColumn"`
	Columns          []string `json:"columns"`
	PageSize         int      `json:"pageSize"`
}

// StateStoreConfig holds the durable lease/progress store connection
// parameters (§6).
type StateStoreConfig struct {
	ConnectionString  string `json:"connectionString"`
	Database          string `json:"database"`
	StatusCollection  string `json:"statusCollection"`
	LeaseCollection   string `json:"leaseCollection"`
}

// Policies holds the timing and retry knobs that govern lease health and
// error handling (§6).
type Policies struct {
	LeaseHeartbeatInterval time.Duration `json:"leaseHeartbeatInterval"`
	LeaseTTL               time.Duration `json:"leaseTtl"`
	TakeoverPollingInterval time.Duration `json:"takeoverPollingInterval"`
	DailyTriggerWindow     time.Duration `json:"dailyTriggerWindow"`
	MaxRetries             int           `json:"maxRetries"`
	InitialBackoff         time.Duration `json:"initialBackoff"`
	BackoffMultiplier      float64       `json:"backoffMultiplier"`
}

// DefaultPolicies returns the §6 default policy values.
func DefaultPolicies() Policies {
	return Policies{
		LeaseHeartbeatInterval:  30 * time.Second,
		LeaseTTL:                2 * time.Minute,
		TakeoverPollingInterval: 15 * time.Second,
		DailyTriggerWindow:      24 * time.Hour,
		MaxRetries:              3,
		InitialBackoff:          time.Second,
		BackoffMultiplier:       2.0,
	}
}

// Config is the full injected configuration for one worker (§6). All fields
// are required unless noted.
type Config struct {
	WorkerID       string           `json:"workerId"`
	Bus            BusConfig        `json:"bus"`
	SQL            SQLConfig        `json:"sql"`
	Files          []FileConfig     `json:"files"`
	StateStore     StateStoreConfig `json:"stateStore"`
	OutputRootPath string           `json:"outputRootPath"`
	Policies       Policies         `json:"policies"`
}

// LoadConfig reads a JSON file into a Config, applying default policy
// values for any zero-valued policy field and overriding the SQL and state
// store connection strings from the BATCHWORKER_SQL_DSN and
// BATCHWORKER_STATE_DSN environment variables when set, so secrets need not
// be committed to the config file on disk.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	defaults := DefaultPolicies()
	if c.Policies.LeaseHeartbeatInterval <= 0 {
		c.Policies.LeaseHeartbeatInterval = defaults.LeaseHeartbeatInterval
	}
	if c.Policies.LeaseTTL <= 0 {
		c.Policies.LeaseTTL = defaults.LeaseTTL
	}
	if c.Policies.TakeoverPollingInterval <= 0 {
		c.Policies.TakeoverPollingInterval = defaults.TakeoverPollingInterval
	}
	if c.Policies.DailyTriggerWindow <= 0 {
		c.Policies.DailyTriggerWindow = defaults.DailyTriggerWindow
	}
	if c.Policies.MaxRetries <= 0 {
		c.Policies.MaxRetries = defaults.MaxRetries
	}
	if c.Policies.InitialBackoff <= 0 {
		c.Policies.InitialBackoff = defaults.InitialBackoff
	}
	if c.Policies.BackoffMultiplier <= 0 {
		c.Policies.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if c.SQL.PageSize <= 0 {
		c.SQL.PageSize = 10000
	}
	if c.Bus.TimeoutMs <= 0 {
		c.Bus.TimeoutMs = 5000
	}

	if dsn := os.Getenv("BATCHWORKER_SQL_DSN"); dsn != "" {
		c.SQL.ConnectionString = dsn
	}
	if dsn := os.Getenv("BATCHWORKER_STATE_DSN"); dsn != "" {
		c.StateStore.ConnectionString = dsn
	}

	return c, nil
}

// FileName expands a file's configured name pattern, substituting "{date}"
// with the current UTC date in YYYYMMDD form (§6).
func (f FileConfig) FileName(now time.Time) string {
	date := now.UTC().Format("20060102")
	return strings.ReplaceAll(f.FileNamePattern, "{date}", date)
}
