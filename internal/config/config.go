package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Input, exactly one of UDPPort and SerialDevice
	UDPPort        int `validate:"omitempty,min=1,max=65535"`
	UDPSize        int `validate:"min=1,max=65507"`
	SerialDevice   string
	SerialBaudRate int    `validate:"min=1"`
	SerialDataBits int    `validate:"min=5,max=8"`
	SerialParity   string `validate:"oneof=None Even Odd Mark Space"`
	SerialStopBits string `validate:"oneof=1 1.5 2"`

	// Decoding and accumulation
	MultipartTimeout time.Duration `validate:"gt=0"`
	AccumulatorAge   time.Duration
	DropFields       []string
	TrimFields       []string
	QueueCapacity    int `validate:"min=0"`

	// Sinks, each enabled when set
	DBConnStr      string
	RawTable       string `validate:"required,sqlident"`
	AISTable       string `validate:"required,sqlident"`
	EmbeddedDBPath string
	RedisAddr      string
	NATSURL        string
	CSVFile        string
	CSVFields      []string `validate:"min=1"`
	UDPForward     []string `validate:"dive,hostname_port"`
	OutputDir      string

	// Observability
	LogLevel      string `validate:"oneof=trace debug info warn error"`
	LogPretty     bool
	MetricsAddr   string
	StatsInterval time.Duration `validate:"gt=0"`
}

// Defaults
const (
	DefaultUDPSize          = 20 * 85
	DefaultBaudRate         = 115200
	DefaultMultipartTimeout = 60 * time.Second
	DefaultAccumulatorAge   = time.Hour
	DefaultStatsInterval    = time.Minute
)

// DefaultCSVFields are the columns written when CSV_FIELDS is not set
var DefaultCSVFields = []string{"t", "mmsi", "x", "y", "sog", "cog"}

var (
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	// table names are interpolated into SQL
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	})
	return v
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	var errs []error
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	secondsVar := func(key string, def time.Duration) time.Duration {
		v, err := getEnvSeconds(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		UDPPort:          intVar("INPUT_UDP_PORT", 0),
		UDPSize:          intVar("UDP_SIZE", DefaultUDPSize),
		SerialDevice:     os.Getenv("INPUT_SERIAL"),
		SerialBaudRate:   intVar("SERIAL_BAUDRATE", DefaultBaudRate),
		SerialDataBits:   intVar("SERIAL_BYTESIZE", 8),
		SerialParity:     normalizeParity(getEnv("SERIAL_PARITY", "None")),
		SerialStopBits:   getEnv("SERIAL_STOPBITS", "1"),
		MultipartTimeout: secondsVar("MULTIPART_TIMEOUT", DefaultMultipartTimeout),
		AccumulatorAge:   secondsVar("ACCUM_AGE", DefaultAccumulatorAge),
		DropFields:       getEnvList("ACCUM_DROP_FIELDS", nil),
		TrimFields:       getEnvList("ACCUM_TRIM_FIELDS", nil),
		QueueCapacity:    intVar("QUEUE_CAPACITY", 0),
		DBConnStr:        os.Getenv("DB_CONN_STR"),
		RawTable:         getEnv("RAW_TABLE", "raw"),
		AISTable:         getEnv("AIS_TABLE", "ais"),
		EmbeddedDBPath:   os.Getenv("EMBEDDED_DB_PATH"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		NATSURL:          os.Getenv("NATS_URL"),
		CSVFile:          os.Getenv("CSV_FILE"),
		CSVFields:        getEnvList("CSV_FIELDS", DefaultCSVFields),
		UDPForward:       getEnvList("UDP_FORWARD", nil),
		OutputDir:        os.Getenv("OUTPUT_DIR"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:        getEnv("LOG_PRETTY", "false") == "true",
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		StatsInterval:    secondsVar("STATS_INTERVAL", DefaultStatsInterval),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if (cfg.UDPPort == 0) == (cfg.SerialDevice == "") {
		return nil, fmt.Errorf("exactly one of INPUT_UDP_PORT and INPUT_SERIAL is required")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// HistoryEnabled reports whether the accumulator merges per vessel
func (c *Config) HistoryEnabled() bool {
	return c.AccumulatorAge > 0
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// getEnvSeconds accepts plain seconds ("3600") or a duration ("1h")
func getEnvSeconds(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is neither seconds nor a duration", key, v)
	}
	return d, nil
}

func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func normalizeParity(p string) string {
	switch strings.ToLower(p) {
	case "n", "none":
		return "None"
	case "e", "even":
		return "Even"
	case "o", "odd":
		return "Odd"
	case "m", "mark":
		return "Mark"
	case "s", "space":
		return "Space"
	default:
		return p
	}
}
