package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sheetcal/internal/fsutil"
	"sheetcal/internal/timeparse"
)

// SourceConfig describes one spreadsheet to read events from.
type SourceConfig struct {
	// ID is the stable identifier used by the API and history.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Kind is one of xlsx, csv, gsheets, csv_url.
	Kind string `yaml:"kind" json:"kind"`

	Path          string `yaml:"path,omitempty" json:"path,omitempty"`
	URL           string `yaml:"url,omitempty" json:"url,omitempty"`
	SpreadsheetID string `yaml:"spreadsheet_id,omitempty" json:"spreadsheet_id,omitempty"`
	Tab           string `yaml:"tab,omitempty" json:"tab,omitempty"`
	Range         string `yaml:"range,omitempty" json:"range,omitempty"`

	// HeaderRow pins the header row; nil lets the detector choose.
	HeaderRow *int `yaml:"header_row,omitempty" json:"header_row,omitempty"`
	// AutoSync includes the source in scheduled syncs.
	AutoSync bool `yaml:"auto_sync" json:"auto_sync"`
	// PersonFilter keeps only events whose person or email contains it.
	PersonFilter string `yaml:"person_filter,omitempty" json:"person_filter,omitempty"`
}

// CalendarConfig selects and configures the calendar backend.
type CalendarConfig struct {
	// Backend is one of google, ics, relay.
	Backend string `yaml:"backend" json:"backend"`

	CalendarID      string `yaml:"calendar_id,omitempty" json:"calendar_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
	// TokenEnv names an environment variable holding an OAuth access token.
	TokenEnv string `yaml:"token_env,omitempty" json:"token_env,omitempty"`

	ICSPath string `yaml:"ics_path,omitempty" json:"ics_path,omitempty"`

	RelayURL          string `yaml:"relay_url,omitempty" json:"relay_url,omitempty"`
	RelayCalendarName string `yaml:"relay_calendar_name,omitempty" json:"relay_calendar_name,omitempty"`

	// Strategy is key or dayscan.
	Strategy string `yaml:"strategy" json:"strategy"`
	// ConflictPolicy answers move/replace prompts when nobody is asked:
	// prompt, approve or decline.
	ConflictPolicy string `yaml:"conflict_policy" json:"conflict_policy"`
}

// FallbackConfig holds the values substituted for empty cells.
type FallbackConfig struct {
	Person      string `yaml:"person" json:"person"`
	Task        string `yaml:"task" json:"task"`
	Location    string `yaml:"location" json:"location"`
	GroupPerson string `yaml:"group_person" json:"group_person"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone name sent to calendar backends.
	Timezone string `yaml:"timezone" json:"timezone"`
	// UTCOffset is the fixed civil offset sheet times are read in, e.g. "+07:00".
	UTCOffset string `yaml:"utc_offset" json:"utc_offset"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// SyncCron is the schedule for auto_sync sources. Empty disables it.
	SyncCron string `yaml:"sync_cron" json:"sync_cron"`

	// StatePath holds presets and history; caches live next to it.
	StatePath string `yaml:"state_path" json:"state_path"`

	Calendar  CalendarConfig `yaml:"calendar" json:"calendar"`
	Fallbacks FallbackConfig `yaml:"fallbacks" json:"fallbacks"`

	// Slots maps slot numbers to "HH:MM-HH:MM".
	Slots map[int]string `yaml:"slots" json:"slots"`

	// ExcludedGroups drops two-tier group columns whose label matches.
	ExcludedGroups []string `yaml:"excluded_groups" json:"excluded_groups"`
	// TaskFallbackColumn names a detail column appended to group task names.
	TaskFallbackColumn string `yaml:"task_fallback_column,omitempty" json:"task_fallback_column,omitempty"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		Timezone:  "Asia/Ho_Chi_Minh",
		UTCOffset: "+07:00",
		LogLevel:  "info",
		SyncCron:  "*/30 * * * *",
		StatePath: "./var/state.yaml",
		Calendar: CalendarConfig{
			Backend:        "ics",
			ICSPath:        "./var/calendar.ics",
			CalendarID:     "primary",
			Strategy:       "key",
			ConflictPolicy: "prompt",
		},
		Fallbacks: FallbackConfig{
			Person:      "Unknown",
			Task:        "Nhiệm vụ không tên",
			Location:    "Chưa xác định",
			GroupPerson: "Unassigned",
		},
		Slots:          defaultSlots(),
		ExcludedGroups: []string{"ghi chú", "note"},
		Sources:        []SourceConfig{},
	}
}

func defaultSlots() map[int]string {
	out := map[int]string{}
	for n, r := range timeparse.DefaultSlots() {
		out[n] = r.String()
	}
	return out
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.UTCOffset == "" {
		c.UTCOffset = def.UTCOffset
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.StatePath == "" {
		c.StatePath = def.StatePath
	}

	c.Calendar.Backend = strings.ToLower(strings.TrimSpace(c.Calendar.Backend))
	switch c.Calendar.Backend {
	case "google", "ics", "relay":
	default:
		c.Calendar.Backend = def.Calendar.Backend
	}
	if c.Calendar.Backend == "ics" && c.Calendar.ICSPath == "" {
		c.Calendar.ICSPath = def.Calendar.ICSPath
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = def.Calendar.CalendarID
	}
	if c.Calendar.Strategy == "" {
		// The relay cannot look entries up by key.
		c.Calendar.Strategy = def.Calendar.Strategy
		if c.Calendar.Backend == "relay" {
			c.Calendar.Strategy = "dayscan"
		}
	}
	switch c.Calendar.ConflictPolicy {
	case "prompt", "approve", "decline":
	default:
		c.Calendar.ConflictPolicy = def.Calendar.ConflictPolicy
	}

	if c.Fallbacks.Person == "" {
		c.Fallbacks.Person = def.Fallbacks.Person
	}
	if c.Fallbacks.Task == "" {
		c.Fallbacks.Task = def.Fallbacks.Task
	}
	if c.Fallbacks.Location == "" {
		c.Fallbacks.Location = def.Fallbacks.Location
	}
	if c.Fallbacks.GroupPerson == "" {
		c.Fallbacks.GroupPerson = def.Fallbacks.GroupPerson
	}

	if len(c.Slots) == 0 {
		c.Slots = def.Slots
	}
	if c.ExcludedGroups == nil {
		c.ExcludedGroups = def.ExcludedGroups
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.ID == "" {
			s.ID = "source-" + strconv.Itoa(i+1)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
	}
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SlotTable(); err != nil {
		errs = append(errs, err)
	}
	switch c.Calendar.Backend {
	case "relay":
		if c.Calendar.RelayURL == "" {
			errs = append(errs, errors.New("calendar.relay_url is required for the relay backend"))
		}
	case "google":
		if c.Calendar.CredentialsFile == "" && c.Calendar.TokenEnv == "" {
			errs = append(errs, errors.New("calendar.credentials_file or calendar.token_env is required for the google backend"))
		}
	}

	seen := map[string]bool{}
	for _, s := range c.Sources {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate source id %q", s.ID))
		}
		seen[s.ID] = true
		switch s.Kind {
		case "xlsx", "csv":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("source %s: path is required for %s", s.ID, s.Kind))
			}
		case "csv_url":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("source %s: url is required for csv_url", s.ID))
			}
		case "gsheets":
			if s.SpreadsheetID == "" && s.URL == "" {
				errs = append(errs, fmt.Errorf("source %s: spreadsheet_id or url is required for gsheets", s.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind))
		}
	}
	return errors.Join(errs...)
}

// Source returns the source with the given id.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}

var offsetPattern = regexp.MustCompile(`^([+-])(\d{1,2}):?(\d{2})?$`)

// Location turns UTCOffset into a fixed zone.
func (c *Config) Location() (*time.Location, error) {
	s := strings.TrimSpace(c.UTCOffset)
	if s == "" || s == "+07:00" {
		return timeparse.CivilZone, nil
	}
	m := offsetPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("utc_offset %q is not of the form +HH:MM", c.UTCOffset)
	}
	h, _ := strconv.Atoi(m[2])
	min := 0
	if m[3] != "" {
		min, _ = strconv.Atoi(m[3])
	}
	if h > 14 || min > 59 {
		return nil, fmt.Errorf("utc_offset %q out of range", c.UTCOffset)
	}
	secs := h*3600 + min*60
	if m[1] == "-" {
		secs = -secs
	}
	return time.FixedZone("UTC"+m[1]+fmt.Sprintf("%02d:%02d", h, min), secs), nil
}

// SlotTable parses Slots.
func (c *Config) SlotTable() (map[int]timeparse.Range, error) {
	p := timeparse.New()
	nums := make([]int, 0, len(c.Slots))
	for n := range c.Slots {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	out := make(map[int]timeparse.Range, len(c.Slots))
	for _, n := range nums {
		if n < 1 {
			return nil, fmt.Errorf("slot %d: slot numbers start at 1", n)
		}
		r, err := p.ParseTimeRange(c.Slots[n])
		if err != nil || r.Slot != 0 {
			return nil, fmt.Errorf("slot %d: %q is not a HH:MM-HH:MM range", n, c.Slots[n])
		}
		out[n] = r
	}
	return out, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save normalizes cfg and writes it atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
