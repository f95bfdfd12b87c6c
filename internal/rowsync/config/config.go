package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
	promclient "github.com/prometheus/client_golang/prometheus"
	"gitlab.com/gitlab-org/rowsync/internal/rowsync/statement"
)

// EnvPrefix is the prefix of environment variables overriding the file configuration.
const EnvPrefix = "rowsync"

// MaxTargets is the number of targets a sync status bitmask can track.
const MaxTargets = 63

// Duration is a time.Duration that is written as a string ("1m30s") in TOML.
type Duration time.Duration

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Logging configures the logrus loggers.
type Logging struct {
	Format string `toml:"format,omitempty"`
	Level  string `toml:"level,omitempty"`
}

// Sentry configures error reporting of failed cycles.
type Sentry struct {
	DSN         string `toml:"dsn,omitempty"`
	Environment string `toml:"environment,omitempty"`
}

// Sync contains scheduling options of replication cycles.
type Sync struct {
	// Interval is the time between the end of a cycle and the start of the next one.
	// If set to 0, cycles are only run on demand.
	Interval Duration `toml:"interval,omitempty"`
	// AdvisoryLock guards cycles with a Postgres advisory lock on the source so
	// only one process replicates at a time.
	AdvisoryLock bool `toml:"advisory_lock,omitempty" split_words:"true"`
	// History records a row per cycle in the source database.
	History bool `toml:"history,omitempty"`
	// HistogramBuckets configures the cycle duration histogram's buckets.
	HistogramBuckets []float64 `toml:"histogram_buckets,omitempty" split_words:"true"`
}

// DefaultSyncConfig returns the default values for sync configuration.
func DefaultSyncConfig() Sync {
	return Sync{
		Interval:         Duration(time.Minute),
		HistogramBuckets: promclient.DefBuckets,
	}
}

// DB holds the connection settings of one database.
type DB struct {
	// Dialect is one of postgres, sqlite, mysql or sqlserver.
	Dialect string `toml:"dialect,omitempty"`
	// DSN is passed to the driver as is. It takes precedence over the discrete fields.
	DSN         string `toml:"dsn,omitempty"`
	Host        string `toml:"host,omitempty"`
	Port        int    `toml:"port,omitempty"`
	User        string `toml:"user,omitempty"`
	Password    string `toml:"password,omitempty"`
	DBName      string `toml:"dbname,omitempty"`
	SSLMode     string `toml:"sslmode,omitempty"`
	SSLCert     string `toml:"sslcert,omitempty"`
	SSLKey      string `toml:"sslkey,omitempty"`
	SSLRootCert string `toml:"sslrootcert,omitempty"`
	// MaxOpenConns limits the connection pool. 0 means no limit.
	MaxOpenConns int `toml:"max_open_conns,omitempty" split_words:"true"`
}

// StatementDialect returns the parsed dialect.
func (db DB) StatementDialect() (statement.Dialect, error) {
	return statement.ParseDialect(db.Dialect)
}

// Target is a database rows are replicated to. The position of a target in
// the configuration is its bit in the sync status and must not change while
// rows are in flight.
type Target struct {
	Name     string `toml:"name,omitempty"`
	Database DB     `toml:"database,omitempty"`
}

// Config is a container for everything found in the TOML config file.
type Config struct {
	Logging              Logging  `toml:"logging,omitempty"`
	Sentry               Sentry   `toml:"sentry,omitempty"`
	PrometheusListenAddr string   `toml:"prometheus_listen_addr,omitempty" split_words:"true"`
	Sync                 Sync     `toml:"sync,omitempty"`
	Source               DB       `toml:"source,omitempty"`
	Targets              []Target `toml:"target,omitempty" ignored:"true"`
	Entities             []Entity `toml:"entity,omitempty" ignored:"true"`
}

// FromFile loads the config for the passed file path. Environment variables
// prefixed with ROWSYNC_ take precedence over the file.
func FromFile(filePath string) (Config, error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}

	conf := &Config{
		Sync: DefaultSyncConfig(),
	}
	if err := toml.Unmarshal(b, conf); err != nil {
		return Config{}, fmt.Errorf("load toml: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, conf); err != nil {
		return Config{}, fmt.Errorf("envconfig: %w", err)
	}

	conf.setDefaults()

	return *conf, nil
}

var (
	errNoSource          = errors.New("no source database configured")
	errNoTargets         = errors.New("no targets configured")
	errTooManyTargets    = fmt.Errorf("no more than %d targets can be configured", MaxTargets)
	errTargetUnnamed     = errors.New("targets must have a name")
	errTargetsNotUnique  = errors.New("targets must have unique names")
	errNoEntities        = errors.New("no entities configured")
	errEntityUnnamed     = errors.New("entities must have a name")
	errEntitiesNotUnique = errors.New("entities must have unique names")
	errNegativeInterval  = errors.New("sync interval must not be negative")
	errAdvisoryLock      = errors.New("advisory lock requires a postgres source")
	errHistory           = errors.New("cycle history is not supported on a sqlserver source")
)

// Validate establishes if the config is valid.
func (c *Config) Validate() error {
	if c.Source.Dialect == "" {
		return errNoSource
	}

	sourceDialect, err := c.Source.StatementDialect()
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}

	if len(c.Targets) == 0 {
		return errNoTargets
	}

	if len(c.Targets) > MaxTargets {
		return errTooManyTargets
	}

	if c.Sync.Interval < 0 {
		return errNegativeInterval
	}

	if c.Sync.AdvisoryLock && sourceDialect != statement.Postgres {
		return fmt.Errorf("source %s: %w", sourceDialect, errAdvisoryLock)
	}

	if c.Sync.History && sourceDialect == statement.SQLServer {
		return errHistory
	}

	targets := make(map[string]struct{}, len(c.Targets))
	for _, target := range c.Targets {
		if target.Name == "" {
			return errTargetUnnamed
		}

		if _, ok := targets[target.Name]; ok {
			return fmt.Errorf("target %q: %w", target.Name, errTargetsNotUnique)
		}
		targets[target.Name] = struct{}{}

		if _, err := target.Database.StatementDialect(); err != nil {
			return fmt.Errorf("target %q: %w", target.Name, err)
		}
	}

	if len(c.Entities) == 0 {
		return errNoEntities
	}

	entities := make(map[string]struct{}, len(c.Entities))
	for _, entity := range c.Entities {
		if entity.Name == "" {
			return errEntityUnnamed
		}

		if _, ok := entities[entity.Name]; ok {
			return fmt.Errorf("entity %q: %w", entity.Name, errEntitiesNotUnique)
		}
		entities[entity.Name] = struct{}{}

		desc, err := entity.Descriptor()
		if err != nil {
			return fmt.Errorf("entity %q: %w", entity.Name, err)
		}

		if err := desc.Validate(); err != nil {
			return fmt.Errorf("entity %q: %w", entity.Name, err)
		}
	}

	return nil
}

// TargetNames returns the names of the targets in bit order.
func (c *Config) TargetNames() []string {
	names := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		names[i] = t.Name
	}
	return names
}

func (c *Config) setDefaults() {
	if len(c.Sync.HistogramBuckets) == 0 {
		c.Sync.HistogramBuckets = promclient.DefBuckets
	}

	for i := range c.Entities {
		if c.Entities[i].SyncColumn == "" {
			c.Entities[i].SyncColumn = DefaultSyncColumn
		}
	}
}
