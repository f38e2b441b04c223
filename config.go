package harness

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"time"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds everything the harness needs to run both nodes.
type Config struct {
	// Bind is the replication endpoint the primary listens on.
	Bind string
	// Connect is the endpoint the secondary replicates from.
	Connect string
	// Dir holds the database files.
	Dir           string
	PrimaryName   string
	SecondaryName string
	// Table is the shared two-column table.
	Table string
	// Interval is the pause between monitor reads and between inserts.
	Interval time.Duration
	// Inserts stops the writer after that many rows. Zero writes forever.
	Inserts int

	// Readiness gate polling.
	ReadyInterval    time.Duration
	ReadyBackoff     float64
	ReadyMaxInterval time.Duration
	ReadyMaxAttempts int

	// CatchUpTimeout bounds the wait for the primary to replicate the rows of
	// a run with Inserts set.
	CatchUpTimeout time.Duration

	// EndpointTimeout bounds the check of the primary's endpoint.
	EndpointTimeout time.Duration

	LogLevel string
}

// NewConfig returns the default configuration: both nodes on
// 127.0.0.1:6667, table "test", one second between polls.
func NewConfig() *Config {
	return &Config{
		Bind:            "127.0.0.1:6667",
		Connect:         "127.0.0.1:6667",
		Dir:             ".",
		PrimaryName:     string(RolePrimary),
		SecondaryName:   string(RoleSecondary),
		Table:           "test",
		Interval:        time.Second,
		ReadyInterval:   time.Second,
		ReadyBackoff:    1,
		CatchUpTimeout:  30 * time.Second,
		EndpointTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// RegisterFlags binds the configuration to fs, using the current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Bind, "bind", c.Bind, "replication endpoint the primary binds (host:port)")
	fs.StringVar(&c.Connect, "connect", c.Connect, "replication endpoint the secondary connects to (host:port)")
	fs.StringVar(&c.Dir, "dir", c.Dir, "directory holding the database files")
	fs.StringVar(&c.PrimaryName, "primary-name", c.PrimaryName, "primary node name")
	fs.StringVar(&c.SecondaryName, "secondary-name", c.SecondaryName, "secondary node name")
	fs.StringVar(&c.Table, "table", c.Table, "shared table name")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "pause between monitor reads and inserts")
	fs.IntVar(&c.Inserts, "inserts", c.Inserts, "stop after this many inserts (0 runs forever)")
	fs.DurationVar(&c.ReadyInterval, "ready-interval", c.ReadyInterval, "pause between readiness probes")
	fs.Float64Var(&c.ReadyBackoff, "ready-backoff", c.ReadyBackoff, "readiness pause multiplier (1 keeps it fixed)")
	fs.DurationVar(&c.ReadyMaxInterval, "ready-max-interval", c.ReadyMaxInterval, "cap on the readiness pause (0 means no cap)")
	fs.IntVar(&c.ReadyMaxAttempts, "ready-max-attempts", c.ReadyMaxAttempts, "readiness probes before giving up (0 means unbounded)")
	fs.DurationVar(&c.CatchUpTimeout, "catchup-timeout", c.CatchUpTimeout, "wait for the primary to replicate a bounded run")
	fs.DurationVar(&c.EndpointTimeout, "endpoint-timeout", c.EndpointTimeout, "timeout of the primary endpoint check")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if _, err := endpointPort(c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("bind: %w", err))
	}
	if _, err := endpointPort(c.Connect); err != nil {
		errs = append(errs, fmt.Errorf("connect: %w", err))
	}
	if c.PrimaryName == "" || c.SecondaryName == "" {
		errs = append(errs, errors.New("node names are required"))
	} else if c.PrimaryName == c.SecondaryName {
		errs = append(errs, fmt.Errorf("node names must differ, both are %q", c.PrimaryName))
	}
	if !identifier.MatchString(c.Table) {
		errs = append(errs, fmt.Errorf("invalid table name %q", c.Table))
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.ReadyInterval <= 0 {
		errs = append(errs, errors.New("ready interval must be positive"))
	}
	if c.CatchUpTimeout <= 0 || c.EndpointTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Inserts < 0 || c.ReadyMaxAttempts < 0 {
		errs = append(errs, errors.New("counts must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// ReadinessPolicy is the polling policy of both readiness gates.
func (c *Config) ReadinessPolicy() Policy {
	return Policy{
		Interval:    c.ReadyInterval,
		Multiplier:  c.ReadyBackoff,
		MaxInterval: c.ReadyMaxInterval,
		MaxAttempts: c.ReadyMaxAttempts,
	}
}

func (c *Config) PrimaryNode() NodeConfig {
	return NodeConfig{
		Name:     c.PrimaryName,
		Role:     RolePrimary,
		Endpoint: c.Bind,
		Path:     filepath.Join(c.Dir, c.PrimaryName+".db"),
		Params:   walParams(),
	}
}

func (c *Config) SecondaryNode() NodeConfig {
	return NodeConfig{
		Name:     c.SecondaryName,
		Role:     RoleSecondary,
		Endpoint: c.Connect,
		Path:     filepath.Join(c.Dir, c.SecondaryName+".db"),
		Params:   walParams(),
	}
}

func walParams() url.Values {
	return url.Values{
		"_journal": {"WAL"},
		"_timeout": {"5000"},
	}
}
