package factsync

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RxDataLab/go-factsync/store"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Default snapshot object names
const (
	DefaultLongKey = "fundamentals_long.csv"
	DefaultWideKey = "fundamentals_wide.csv"

	// DefaultCutoff bounds the historical backfill
	DefaultCutoff = "2024-12-31"
)

// Config is the runtime configuration, read from the environment. Contact
// details are only checked when a Client is built, so offline commands run
// without them.
//
//	SEC_EMAIL              contact email used in the User-Agent
//	SEC_API_USER_AGENT     full User-Agent, overrides SEC_EMAIL
//	SEC_API_VERIFY_SSL     true|false (default true)
//	SEC_API_CA_BUNDLE      PEM bundle for TLS verification
//	FACTSYNC_*             see LoadConfig
//	DATABASE_URL           postgres sink connection string
type Config struct {
	Email     string `validate:"omitempty,email"`
	UserAgent string
	VerifySSL bool
	CABundle  string `validate:"omitempty,file"`
	BaseURL   string `validate:"omitempty,url"`

	Concurrency       int           `validate:"min=1,max=32"`
	RequestsPerSecond float64       `validate:"gt=0,lte=10"`
	MaxAttempts       int           `validate:"min=1"`
	RetryBackoff      time.Duration `validate:"min=0"`
	Timeout           time.Duration `validate:"gt=0"`

	UniverseFile string `validate:"omitempty,file"`
	Prefilter    string `validate:"oneof=entity period"`
	Cutoff       string `validate:"omitempty,datetime=2006-01-02"`
	Forms        []string

	StoreDriver string `validate:"oneof=fs s3 memory"`
	StoreRoot   string
	S3Bucket    string `validate:"required_if=StoreDriver s3"`
	S3Region    string
	S3Endpoint  string `validate:"omitempty,url"`
	S3PathStyle bool
	S3Prefix    string
	LongKey     string `validate:"required"`
	WideKey     string `validate:"required"`

	SinkDriver    string `validate:"omitempty,oneof=postgres sqlite"`
	SinkTable     string `validate:"required"`
	SinkBatchSize int    `validate:"min=1"`
	DatabaseURL   string `validate:"required_if=SinkDriver postgres"`
	SQLitePath    string

	MetricsFile string
}

// LoadConfig loads the given .env files (missing files are ignored, variables
// already set win) and reads the configuration from the environment.
//
//	FACTSYNC_BASE_URL, FACTSYNC_CONCURRENCY, FACTSYNC_RATE, FACTSYNC_MAX_ATTEMPTS,
//	FACTSYNC_RETRY_BACKOFF, FACTSYNC_TIMEOUT, FACTSYNC_UNIVERSE, FACTSYNC_PREFILTER,
//	FACTSYNC_CUTOFF, FACTSYNC_FORMS (comma separated),
//	FACTSYNC_STORE_DRIVER, FACTSYNC_STORE_ROOT, FACTSYNC_S3_BUCKET, FACTSYNC_S3_REGION,
//	FACTSYNC_S3_ENDPOINT, FACTSYNC_S3_PATH_STYLE, FACTSYNC_S3_PREFIX,
//	FACTSYNC_LONG_KEY, FACTSYNC_WIDE_KEY,
//	FACTSYNC_SINK_DRIVER, FACTSYNC_SINK_TABLE, FACTSYNC_SINK_BATCH, FACTSYNC_SQLITE_PATH,
//	FACTSYNC_METRICS_FILE
func LoadConfig(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, eris.Wrapf(err, "load %s", f)
		}
	}
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds and validates a Config from a variable lookup
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	e := envReader{get: getenv}
	cfg := Config{
		Email:     strings.TrimSpace(getenv(SecEmailEnvVar)),
		UserAgent: strings.TrimSpace(getenv("SEC_API_USER_AGENT")),
		VerifySSL: e.getBool("SEC_API_VERIFY_SSL", true),
		CABundle:  getenv("SEC_API_CA_BUNDLE"),
		BaseURL:   getenv("FACTSYNC_BASE_URL"),

		Concurrency:       e.getInt("FACTSYNC_CONCURRENCY", 4),
		RequestsPerSecond: e.getFloat("FACTSYNC_RATE", DefaultRequestsPerSecond),
		MaxAttempts:       e.getInt("FACTSYNC_MAX_ATTEMPTS", 3),
		RetryBackoff:      e.getDuration("FACTSYNC_RETRY_BACKOFF", 3*time.Second),
		Timeout:           e.getDuration("FACTSYNC_TIMEOUT", 30*time.Second),

		UniverseFile: getenv("FACTSYNC_UNIVERSE"),
		Prefilter:    e.getString("FACTSYNC_PREFILTER", PrefilterEntity.String()),
		Cutoff:       e.getString("FACTSYNC_CUTOFF", DefaultCutoff),
		Forms:        e.getList("FACTSYNC_FORMS"),

		StoreDriver: e.getString("FACTSYNC_STORE_DRIVER", string(store.DriverFilesystem)),
		StoreRoot:   e.getString("FACTSYNC_STORE_ROOT", "."),
		S3Bucket:    getenv("FACTSYNC_S3_BUCKET"),
		S3Region:    getenv("FACTSYNC_S3_REGION"),
		S3Endpoint:  getenv("FACTSYNC_S3_ENDPOINT"),
		S3PathStyle: e.getBool("FACTSYNC_S3_PATH_STYLE", false),
		S3Prefix:    getenv("FACTSYNC_S3_PREFIX"),
		LongKey:     e.getString("FACTSYNC_LONG_KEY", DefaultLongKey),
		WideKey:     e.getString("FACTSYNC_WIDE_KEY", DefaultWideKey),

		SinkDriver:    getenv("FACTSYNC_SINK_DRIVER"),
		SinkTable:     e.getString("FACTSYNC_SINK_TABLE", "fundamentals_wide"),
		SinkBatchSize: e.getInt("FACTSYNC_SINK_BATCH", 500),
		DatabaseURL:   getenv("DATABASE_URL"),
		SQLitePath:    e.getString("FACTSYNC_SQLITE_PATH", "factsync.db"),

		MetricsFile: getenv("FACTSYNC_METRICS_FILE"),
	}
	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return eris.Wrap(err, "invalid configuration")
	}
	return nil
}

// ClientConfig returns the retrieval settings
func (c Config) ClientConfig(logger *zap.Logger) ClientConfig {
	return ClientConfig{
		BaseURL:           c.BaseURL,
		Email:             c.Email,
		UserAgent:         c.UserAgent,
		Timeout:           c.Timeout,
		MaxAttempts:       c.MaxAttempts,
		RetryBackoff:      c.RetryBackoff,
		RequestsPerSecond: c.RequestsPerSecond,
		VerifySSL:         c.VerifySSL,
		CABundle:          c.CABundle,
		Logger:            logger,
	}
}

// StoreConfig returns the snapshot store settings
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Driver: store.Driver(c.StoreDriver),
		Root:   c.StoreRoot,
		S3: store.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			PathStyle: c.S3PathStyle,
			Prefix:    c.S3Prefix,
		},
	}
}

// PrefilterPolicy returns the parsed prefilter setting
func (c Config) PrefilterPolicy() PrefilterPolicy {
	p, err := ParsePrefilterPolicy(c.Prefilter)
	if err != nil {
		return PrefilterEntity
	}
	return p
}

// CutoffDate returns the parsed cutoff, zero when unset
func (c Config) CutoffDate() time.Time {
	t, _ := ParseDate(c.Cutoff)
	return t
}

// envReader reads typed variables, keeping the first parse error
type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) getString(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) getList(key string) []string {
	var out []string
	for _, p := range strings.Split(e.get(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *envReader) getInt(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *envReader) getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return f
}

func (e *envReader) getBool(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go durations ("3s") and plain seconds ("3")
func (e *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = eris.Wrapf(err, "parse %s=%q", key, value)
	}
}
