package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/precare/internal/api"
	"github.com/BTreeMap/precare/internal/lockfile"
	"github.com/BTreeMap/precare/internal/store"
	"github.com/BTreeMap/precare/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for precare state data
	DefaultStateDir = "/var/lib/precare"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "precare.db"
)

func main() {
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)
	initializeLogger(*flags.debug)

	if err := run(flags); err != nil {
		slog.Error("precare failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("precare exited successfully")
}

func run(flags Flags) error {
	if usesStateDir(*flags.dbDSN) {
		lock, err := lockfile.Acquire(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	storeOpts := buildStoreOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping precare intake service")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "",
		"dsn_type", dsnType(*flags.dbDSN), "api_addr", *flags.apiAddr, "dedup_retention", *flags.dedupRetention)
	return api.Run(storeOpts, apiOpts)
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	APIAddr        string
	Debug          bool
	DedupRetention time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	apiAddr        *string
	debug          *bool
	dedupRetention *time.Duration
}

// initializeLogger installs a text handler on stdout at debug or info level.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from the .env file and the environment.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       util.GetenvDefault("PRECARE_STATE_DIR", DefaultStateDir),
		APIAddr:        util.GetenvDefault("API_ADDR", api.DefaultAddr),
		Debug:          util.ParseBoolEnv("PRECARE_DEBUG", false),
		DedupRetention: util.ParseDurationEnv("PRECARE_DEDUP_RETENTION", api.DefaultDedupRetention),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"PRECARE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"PRECARE_DEBUG", config.Debug)
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	return parseFlags(flag.CommandLine, os.Args[1:], config)
}

func parseFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for precare data (overrides $PRECARE_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "session store DSN: postgres URL, SQLite path, or \"memory\" (overrides $DATABASE_URL)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		debug:          fs.Bool("debug", config.Debug, "enable debug logging (overrides $PRECARE_DEBUG)"),
		dedupRetention: fs.Duration("dedup-retention", config.DedupRetention, "how long inbound message ids are remembered (overrides $PRECARE_DEDUP_RETENTION)"),
	}
	if err := fs.Parse(args); err != nil {
		// flag.CommandLine exits on error; other sets fall through with defaults.
		slog.Warn("failed to parse flags", "error", err)
	}

	// A default SQLite path follows -state-dir when only the directory was overridden.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}
	return flags
}

// usesStateDir reports whether the store keeps its data in the state directory.
func usesStateDir(dsn string) bool {
	return dsnType(dsn) == "sqlite3"
}

func dsnType(dsn string) string {
	if dsn == "" || dsn == store.MemoryDSN {
		return store.MemoryDSN
	}
	return store.DetectDSNType(dsn)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	dsn := *flags.dbDSN
	switch dsnType(dsn) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return []store.Option{store.WithPostgresDSN(dsn)}
	case "sqlite3":
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		return []store.Option{store.WithSQLiteDSN(dsn)}
	default:
		slog.Debug("Using in-memory store")
		return nil
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.dedupRetention > 0 {
		apiOpts = append(apiOpts, api.WithDedupRetention(*flags.dedupRetention))
	}
	return apiOpts
}
