package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/newsdeck.db" description:"Path to the SQLite database file (':memory:' for a throwaway store)"`

	// Source configuration
	FeedsDir    string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing source configuration files (.yml, .yaml, .toml)"`
	FixturesDir string `long:"fixtures-dir" env:"FIXTURES_DIR" description:"Read feeds from <dir>/<source>.xml instead of the network"`

	// HTTP server configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`
	IngestSecret string `long:"ingest-secret" env:"INGEST_SECRET" description:"Shared secret required by the ingest endpoint (x-ingest-secret header)"`

	// Ingestion configuration
	WorkerCount       int `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Number of sources ingested in parallel"`
	SchedulerInterval int `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"1800" description:"Scheduled ingestion interval in seconds (0 disables the scheduler)"`
	BackfillDays      int `long:"backfill-days" env:"BACKFILL_DAYS" default:"7" description:"Maximum age in days of ingested articles"`
	MaxPerSource      int `long:"max-per-source" env:"MAX_PER_SOURCE" default:"20" description:"Maximum number of entries considered per source"`
	ExtractTimeout    int `long:"extract-timeout" env:"EXTRACT_TIMEOUT" default:"15" description:"Timeout in seconds for article page extraction"`

	// One-shot modes
	Once           bool `long:"once" description:"Run a single ingestion, print the report and exit"`
	BackfillTarget int  `long:"backfill-target" description:"Repeat ingestion until the store holds this many articles, then exit"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Newsdeck/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the process arguments and environment into the global configuration.
func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs is Load with explicit arguments; nil means os.Args.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.BackfillTarget < 0 {
		return nil, fmt.Errorf("backfill target must be non-negative")
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		FeedsDir:          raw.FeedsDir,
		FixturesDir:       raw.FixturesDir,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		IngestSecret:      raw.IngestSecret,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		BackfillDays:      raw.BackfillDays,
		MaxPerSource:      raw.MaxPerSource,
		ExtractTimeout:    raw.ExtractTimeout,
		Once:              raw.Once,
		BackfillTarget:    raw.BackfillTarget,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// ExtractTimeoutDuration returns the article extraction timeout.
func (c *Cfg) ExtractTimeoutDuration() time.Duration {
	if c.ExtractTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ExtractTimeout) * time.Second
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
