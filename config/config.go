package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoLocations = errors.New("no dealership locations configured")
	ErrNoModels    = errors.New("no model variants configured")
	ErrNoMake      = errors.New("no make configured")
)

type Config struct {
	Criteria      CriteriaConfig
	Locations     []*LocationConfig
	Scheduler     SchedulerConfig
	Fetch         FetchConfig
	Ledger        LedgerConfig
	Notify        NotifyConfig
	S3            S3Config
	DatabaseURL   string
	DashboardPath string
	DBPath        string
	LogFile       string
	LogLevel      string
	EnrichDetails bool
}

// CriteriaConfig describes which vehicles are wanted.
type CriteriaConfig struct {
	Make      string   `yaml:"make"`
	Models    []string `yaml:"models"`
	Trims     []string `yaml:"trims"`
	MinYear   int      `yaml:"min_year"`
	Color     string   `yaml:"color"`
	BodyStyle string   `yaml:"body_style"`
}

// LocationConfig is one dealership site.
type LocationConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	NewURL   string `yaml:"new_url"`
	UsedURL  string `yaml:"used_url"`
}

type SchedulerConfig struct {
	Cron          string
	Interval      time.Duration
	BusinessHours BusinessHours
}

// BusinessHours bounds scheduled (not manual) searches.
type BusinessHours struct {
	StartHour int
	EndHour   int
	Days      []time.Weekday
}

type FetchConfig struct {
	Mode      string // http or browser
	ProxyURL  string
	DelayMS   int
	Timeout   time.Duration
	UserAgent string
}

type LedgerConfig struct {
	Path               string
	RetentionDays      int
	NoMatchesFrequency string
}

type NotifyConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	EmailTo      []string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioTo         string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
	Key             string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

func (c NotifyConfig) EmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailFrom != "" && len(c.EmailTo) > 0
}

func (c NotifyConfig) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != "" && c.TwilioTo != ""
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// Load reads .env, the environment and the YAML files under CONFIG_DIR.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(getEnv("CONFIG_DIR", "config"))
}

func LoadFrom(configDir string) (*Config, error) {
	cfg := &Config{
		Criteria: DefaultCriteria(time.Now()),
		Scheduler: SchedulerConfig{
			Cron: getEnv("SEARCH_CRON", "0 9,13,17 * * 1-5"),
			BusinessHours: BusinessHours{
				StartHour: getEnvInt("BUSINESS_START_HOUR", 9),
				EndHour:   getEnvInt("BUSINESS_END_HOUR", 18),
				Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			},
		},
		Fetch: FetchConfig{
			Mode:      getEnv("FETCH_MODE", "http"),
			ProxyURL:  os.Getenv("PROXY_URL"),
			DelayMS:   getEnvInt("FETCH_DELAY_MS", 1000),
			Timeout:   time.Duration(getEnvInt("FETCH_TIMEOUT_SEC", 30)) * time.Second,
			UserAgent: getEnv("FETCH_USER_AGENT", defaultUserAgent),
		},
		Ledger: LedgerConfig{
			Path:               getEnv("LEDGER_PATH", "previous_matches.json"),
			RetentionDays:      getEnvInt("RETENTION_DAYS", 30),
			NoMatchesFrequency: getEnv("NO_MATCHES_FREQUENCY", "daily"),
		},
		Notify: NotifyConfig{
			SMTPHost:         os.Getenv("SMTP_HOST"),
			SMTPPort:         getEnvInt("SMTP_PORT", 587),
			SMTPUsername:     os.Getenv("SMTP_USERNAME"),
			SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
			EmailFrom:        os.Getenv("EMAIL_FROM"),
			EmailTo:          splitList(os.Getenv("EMAIL_TO")),
			TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFrom:       os.Getenv("TWILIO_PHONE_NUMBER"),
			TwilioTo:         os.Getenv("TARGET_PHONE_NUMBER"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Key:             getEnv("S3_DASHBOARD_KEY", "dashboard/data.json"),
		},
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DashboardPath: getEnv("DASHBOARD_PATH", "docs/data.json"),
		DBPath:        getEnv("DB_PATH", "search.db"),
		LogFile:       getEnv("LOG_FILE", "search.log"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnrichDetails: getEnvBool("ENRICH_DETAILS", false),
	}

	if interval := os.Getenv("SEARCH_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
			cfg.Scheduler.Cron = ""
		}
	}

	if err := cfg.loadCriteria(filepath.Join(configDir, "criteria.yaml")); err != nil {
		return nil, err
	}
	if minYear := getEnvInt("MIN_YEAR", 0); minYear > 0 {
		cfg.Criteria.MinYear = minYear
	}

	if err := cfg.loadLocationConfigs(filepath.Join(configDir, "locations")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultCriteria mirrors the stock search: Civic variants ten model years back.
func DefaultCriteria(now time.Time) CriteriaConfig {
	return CriteriaConfig{
		Make:      "Honda",
		Models:    []string{"Civic Hybrid", "Civic"},
		Trims:     []string{"Sport", "Sport Touring", "EX", "LX"},
		MinYear:   now.Year() - 10,
		Color:     "Black",
		BodyStyle: "Sedan",
	}
}

func (c *Config) Validate() error {
	if len(c.Locations) == 0 {
		return ErrNoLocations
	}
	if strings.TrimSpace(c.Criteria.Make) == "" {
		return ErrNoMake
	}
	if len(c.Criteria.Models) == 0 {
		return ErrNoModels
	}
	for _, loc := range c.Locations {
		if loc.NewURL == "" && loc.UsedURL == "" {
			return fmt.Errorf("location %s: no inventory URLs", loc.ID)
		}
	}
	return nil
}

func (c *Config) loadCriteria(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var criteria CriteriaConfig
	if err := yaml.Unmarshal(data, &criteria); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if criteria.Make != "" {
		c.Criteria.Make = criteria.Make
	}
	if len(criteria.Models) > 0 {
		c.Criteria.Models = criteria.Models
	}
	if criteria.Trims != nil {
		c.Criteria.Trims = criteria.Trims
	}
	if criteria.MinYear > 0 {
		c.Criteria.MinYear = criteria.MinYear
	}
	if criteria.Color != "" {
		c.Criteria.Color = criteria.Color
	}
	if criteria.BodyStyle != "" {
		c.Criteria.BodyStyle = criteria.BodyStyle
	}
	return nil
}

func (c *Config) loadLocationConfigs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var loc LocationConfig
		if err := yaml.Unmarshal(data, &loc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if loc.ID == "" {
			loc.ID = strings.TrimSuffix(entry.Name(), ".yaml")
		}

		c.Locations = append(c.Locations, &loc)
	}

	sort.Slice(c.Locations, func(i, j int) bool {
		return c.Locations[i].ID < c.Locations[j].ID
	})
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
