package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/harvestflow/harvestflow/internal/api"
	"github.com/harvestflow/harvestflow/internal/genai"
	"github.com/harvestflow/harvestflow/internal/lockfile"
	"github.com/harvestflow/harvestflow/internal/speech"
	"github.com/harvestflow/harvestflow/internal/store"
	"github.com/harvestflow/harvestflow/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for HarvestFlow state data
	DefaultStateDir = "/var/lib/harvestflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "harvestflow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Guard the state directory against a second instance
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	speechOpts := buildSpeechOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping HarvestFlow with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "speech", len(speechOpts), "api", len(apiOpts))
	if err := api.Run(storeOpts, genaiOpts, speechOpts, apiOpts); err != nil {
		slog.Error("HarvestFlow failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("HarvestFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbDriver     string
	DatabaseURL  string
	RedisAddr    string
	RedisPass    string
	StateDir     string
	OpenAIKey    string
	OpenAIModel  string
	SarvamKey    string
	SarvamURL    string
	APIAddr      string
	ScheduleFile string
	SessionTTL   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDriver     *string
	dbDSN        *string
	redisAddr    *string
	redisPass    *string
	openaiKey    *string
	openaiModel  *string
	sarvamKey    *string
	sarvamURL    *string
	apiAddr      *string
	scheduleFile *string
	sessionTTL   *string
}

// initializeLogger sets up structured logging; debug level is opt-in
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("HARVESTFLOW_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbDriver:     os.Getenv("HARVESTFLOW_DB_DRIVER"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		StateDir:     os.Getenv("HARVESTFLOW_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
		SarvamKey:    os.Getenv("SARVAM_API_KEY"),
		SarvamURL:    os.Getenv("SARVAM_BASE_URL"),
		APIAddr:      os.Getenv("API_ADDR"),
		ScheduleFile: os.Getenv("HARVESTFLOW_SCHEDULE_FILE"),
		SessionTTL:   os.Getenv("HARVESTFLOW_SESSION_TTL"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No HARVESTFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"HARVESTFLOW_DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR", config.RedisAddr,
		"HARVESTFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SARVAM_API_KEY_SET", config.SarvamKey != "",
		"API_ADDR", config.APIAddr,
		"HARVESTFLOW_SCHEDULE_FILE", config.ScheduleFile)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for HarvestFlow data (overrides $HARVESTFLOW_STATE_DIR)"),
		dbDriver:     flag.String("db-driver", config.DbDriver, "session store driver: memory, sqlite, postgres or redis (overrides $HARVESTFLOW_DB_DRIVER)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the sqlite or postgres store (overrides $DATABASE_URL)"),
		redisAddr:    flag.String("redis-addr", config.RedisAddr, "Redis address for the redis store (overrides $REDIS_ADDR)"),
		redisPass:    flag.String("redis-password", config.RedisPass, "Redis password (overrides $REDIS_PASSWORD)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:  flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
		sarvamKey:    flag.String("sarvam-api-key", config.SarvamKey, "Sarvam speech API key; empty disables voice (overrides $SARVAM_API_KEY)"),
		sarvamURL:    flag.String("sarvam-base-url", config.SarvamURL, "Sarvam speech API base URL (overrides $SARVAM_BASE_URL)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		scheduleFile: flag.String("schedule-file", config.ScheduleFile, "JSON file overriding the built-in question schedules (overrides $HARVESTFLOW_SCHEDULE_FILE)"),
		sessionTTL:   flag.String("session-ttl", config.SessionTTL, "how long idle sessions are kept, e.g. 24h; empty keeps them forever (overrides $HARVESTFLOW_SESSION_TTL)"),
	}

	flag.Parse()

	// Default unclassified sqlite DSNs into the state directory
	if *flags.dbDriver == "sqlite" && *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No DSN provided for sqlite store, defaulting into state directory", "sqlite_path", *flags.dbDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDriver", *flags.dbDriver,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"sarvamKeySet", *flags.sarvamKey != "",
		"apiAddr", *flags.apiAddr,
		"scheduleFile", *flags.scheduleFile)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if *flags.dbDriver != "sqlite" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		storeOpts = append(storeOpts, store.WithDSN(*flags.dbDSN))
	}
	if *flags.redisAddr != "" {
		storeOpts = append(storeOpts, store.WithRedisAddr(*flags.redisAddr))
	}
	if *flags.redisPass != "" {
		storeOpts = append(storeOpts, store.WithRedisPassword(*flags.redisPass))
	}
	if *flags.sessionTTL != "" {
		ttl, err := time.ParseDuration(*flags.sessionTTL)
		if err != nil {
			slog.Error("Invalid session TTL, ignoring", "value", *flags.sessionTTL, "error", err)
		} else {
			storeOpts = append(storeOpts, store.WithTTL(ttl))
		}
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildSpeechOptions constructs speech pipeline options; an empty slice
// disables voice support entirely
func buildSpeechOptions(flags Flags) []speech.Option {
	if *flags.sarvamKey == "" {
		slog.Debug("No Sarvam API key provided, voice support disabled")
		return nil
	}
	speechOpts := []speech.Option{speech.WithAPIKey(*flags.sarvamKey)}
	if *flags.sarvamURL != "" {
		speechOpts = append(speechOpts, speech.WithBaseURL(*flags.sarvamURL))
	}
	return speechOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.dbDriver != "" {
		apiOpts = append(apiOpts, api.WithDBDriver(*flags.dbDriver))
	}
	if *flags.scheduleFile != "" {
		apiOpts = append(apiOpts, api.WithScheduleFile(*flags.scheduleFile))
	}
	return apiOpts
}
