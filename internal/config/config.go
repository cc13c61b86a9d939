package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Logger   LoggerConfig
	Security SecurityConfig
	Source   SourceConfig
	Segment  SegmentConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DataConfig locates the artifacts shared by the pipeline and the dashboard.
type DataConfig struct {
	RFMFile   string
	OutputDir string
	CacheDir  string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
}

// SourceConfig selects where transactions are read from. Kind is one of csv,
// xlsx, mysql, postgres; empty means "guess from the Path extension".
type SourceConfig struct {
	Kind      string
	Path      string
	Sheet     string
	Encoding  string
	Delimiter string
	DSN       string
	Table     string
	Since     time.Time
}

type SegmentConfig struct {
	SnapshotDate  time.Time // zero: day after the latest invoice
	K             int
	Labels        []string
	Method        string
	Seed          uint64
	ReturnsPolicy string
	HistogramBins int
}

type PipelineConfig struct {
	Progress bool
}

var DefaultLabels = []string{"Loyal Customers", "At-Risk Customers", "Occasional Buyers", "New Customers"}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("rfm")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()
	setDefaults(v)

	snapshot, err := getDate(v, "SEGMENT_SNAPSHOT_DATE")
	if err != nil {
		return nil, err
	}
	since, err := getDate(v, "SOURCE_SINCE")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Data: DataConfig{
			RFMFile:   v.GetString("DATA_RFM_FILE"),
			OutputDir: v.GetString("DATA_OUTPUT_DIR"),
			CacheDir:  v.GetString("DATA_CACHE_DIR"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Security: SecurityConfig{
			EnableRateLimit: v.GetBool("SECURITY_RATE_LIMIT_ENABLED"),
			RateLimitRPS:    v.GetInt("SECURITY_RATE_LIMIT_RPS"),
			RateLimitBurst:  v.GetInt("SECURITY_RATE_LIMIT_BURST"),
		},
		Source: SourceConfig{
			Kind:      strings.ToLower(v.GetString("SOURCE_KIND")),
			Path:      v.GetString("SOURCE_PATH"),
			Sheet:     v.GetString("SOURCE_SHEET"),
			Encoding:  strings.ToLower(v.GetString("SOURCE_ENCODING")),
			Delimiter: v.GetString("SOURCE_DELIMITER"),
			DSN:       v.GetString("SOURCE_DSN"),
			Table:     v.GetString("SOURCE_TABLE"),
			Since:     since,
		},
		Segment: SegmentConfig{
			SnapshotDate:  snapshot,
			K:             v.GetInt("SEGMENT_K"),
			Labels:        splitList(v.GetString("SEGMENT_LABELS")),
			Method:        strings.ToLower(v.GetString("SEGMENT_METHOD")),
			Seed:          v.GetUint64("SEGMENT_SEED"),
			ReturnsPolicy: strings.ToLower(v.GetString("SEGMENT_RETURNS_POLICY")),
			HistogramBins: v.GetInt("SEGMENT_HISTOGRAM_BINS"),
		},
		Pipeline: PipelineConfig{
			Progress: v.GetBool("PIPELINE_PROGRESS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_PORT", 8084)
	v.SetDefault("SERVER_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("DATA_RFM_FILE", "data/rfm_data.csv")
	v.SetDefault("DATA_OUTPUT_DIR", "output")
	v.SetDefault("DATA_CACHE_DIR", ".cache")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SECURITY_RATE_LIMIT_ENABLED", true)
	v.SetDefault("SECURITY_RATE_LIMIT_RPS", 100)
	v.SetDefault("SECURITY_RATE_LIMIT_BURST", 10)

	v.SetDefault("SOURCE_PATH", "data/Online Retail.xlsx")
	v.SetDefault("SOURCE_ENCODING", "utf-8")
	v.SetDefault("SOURCE_DELIMITER", ",")
	v.SetDefault("SOURCE_TABLE", "transactions")

	v.SetDefault("SEGMENT_K", len(DefaultLabels))
	v.SetDefault("SEGMENT_LABELS", strings.Join(DefaultLabels, ","))
	v.SetDefault("SEGMENT_METHOD", "kmeans")
	v.SetDefault("SEGMENT_SEED", 42)
	v.SetDefault("SEGMENT_RETURNS_POLICY", "include")
	v.SetDefault("SEGMENT_HISTOGRAM_BINS", 20)

	v.SetDefault("PIPELINE_PROGRESS", true)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Data.RFMFile == "" {
		return fmt.Errorf("RFM file path cannot be empty")
	}
	if c.Data.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	if err := oneOf("log level", c.Logger.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("log format", c.Logger.Format, "json", "text"); err != nil {
		return err
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}
	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Source.Kind != "" {
		if err := oneOf("source kind", c.Source.Kind, "csv", "xlsx", "mysql", "postgres"); err != nil {
			return err
		}
	}
	if err := oneOf("source encoding", c.Source.Encoding, "utf-8", "latin1"); err != nil {
		return err
	}
	if len([]rune(c.Source.Delimiter)) != 1 {
		return fmt.Errorf("source delimiter must be a single character, got %q", c.Source.Delimiter)
	}

	if c.Segment.K < 1 {
		return fmt.Errorf("segment count must be positive, got %d", c.Segment.K)
	}
	if len(c.Segment.Labels) != c.Segment.K {
		return fmt.Errorf("got %d segment labels for %d segments", len(c.Segment.Labels), c.Segment.K)
	}
	seen := make(map[string]bool, len(c.Segment.Labels))
	for _, label := range c.Segment.Labels {
		if seen[label] {
			return fmt.Errorf("segment label %q is used more than once", label)
		}
		seen[label] = true
	}
	if err := oneOf("segment method", c.Segment.Method, "kmeans", "ward"); err != nil {
		return err
	}
	if err := oneOf("returns policy", c.Segment.ReturnsPolicy, "include", "exclude"); err != nil {
		return err
	}
	if c.Segment.HistogramBins < 1 {
		return fmt.Errorf("histogram bins must be positive")
	}

	return nil
}

func oneOf(name, value string, valid ...string) error {
	if !slices.Contains(valid, value) {
		return fmt.Errorf("invalid %s %q, must be one of: %s", name, value, strings.Join(valid, ", "))
	}
	return nil
}

func getDate(v *viper.Viper, key string) (time.Time, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", key, err)
	}
	return t, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
