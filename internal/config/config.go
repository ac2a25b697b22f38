// Package config loads the immutable startup configuration for the sync
// daemon. The configuration is read once in main and passed down into the
// services; nothing in this package is consulted after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Resolution modes for the stay-window resolver.
const (
	ModeCurrentOrNext = "current_or_next"
	ModeArrivalDay    = "arrival_day"
)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a "HH:MM" string. Trailing garbage is rejected so a
// typo'd time fails at startup instead of silently truncating.
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// On returns the instant at this clock time on the given calendar day in zone.
func (c Clock) On(day time.Time, zone *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, zone)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Unit is one managed apartment: its booking sheet, its smart lock, and the
// name of the guest code on that lock.
type Unit struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	AuthName    string `yaml:"auth_name"`
	DriveFileID string `yaml:"drive_file_id"`
	SmartlockID int64  `yaml:"smartlock_id"`
	// PIN is only required when the guest code does not exist yet and has
	// to be created on first reconciliation.
	PIN *int `yaml:"pin"`
}

// Validate reports whether the unit carries the identifiers a reconciliation
// pass needs. A unit failing validation is skipped with an error line; it
// never aborts the run.
func (u Unit) Validate() error {
	if u.DriveFileID == "" {
		return fmt.Errorf("unit %s: drive_file_id is not set", u.ID)
	}
	if u.SmartlockID == 0 {
		return fmt.Errorf("unit %s: smartlock_id is not set", u.ID)
	}
	return nil
}

// NukiConfig configures the lock vendor API client.
type NukiConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// DriveConfig configures the booking sheet source.
type DriveConfig struct {
	// TokenFile is a Google authorized-user token file (client id/secret
	// plus refresh token). It is rewritten when the access token refreshes.
	TokenFile string        `yaml:"token_file"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MailConfig configures the SMTP report sink. Delivery is skipped entirely
// when Host or To is empty.
type MailConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	StartTLS      *bool  `yaml:"starttls"`
	From          string `yaml:"from"`
	To            string `yaml:"to"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// UseStartTLS reports whether the STARTTLS upgrade should be attempted.
// Defaults to true when the file does not say otherwise.
func (m MailConfig) UseStartTLS() bool {
	return m.StartTLS == nil || *m.StartTLS
}

// Config is the fully parsed daemon configuration.
type Config struct {
	Zone             *time.Location
	Checkin          Clock
	Checkout         Clock
	RunTime          Clock
	ResolutionMode   string
	LogDir           string
	LogRetentionDays int
	ForceSync        bool
	ArrivalColumn    string
	DepartureColumn  string
	Nuki             NukiConfig
	Drive            DriveConfig
	Mail             MailConfig
	Units            []Unit
}

// fileConfig is the raw YAML shape before parsing and defaulting.
type fileConfig struct {
	Timezone         string `yaml:"timezone"`
	CheckinTime      string `yaml:"checkin_time"`
	CheckoutTime     string `yaml:"checkout_time"`
	RunTime          string `yaml:"run_time"`
	ResolutionMode   string `yaml:"resolution_mode"`
	LogDir           string `yaml:"log_dir"`
	LogRetentionDays int    `yaml:"log_retention_days"`
	ForceSync        bool   `yaml:"force_sync_after_change"`
	Columns          struct {
		Arrival   string `yaml:"arrival"`
		Departure string `yaml:"departure"`
	} `yaml:"columns"`
	Nuki  NukiConfig  `yaml:"nuki"`
	Drive DriveConfig `yaml:"drive"`
	Mail  MailConfig  `yaml:"mail"`
	Units []Unit      `yaml:"units"`
}

// Load reads, defaults and validates the configuration file at path.
// Secrets may be supplied via environment instead of the file:
// NUKI_ACCESS_TOKEN and SMTP_PASSWORD override their file counterparts.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&fc)

	zone, err := time.LoadLocation(fc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", fc.Timezone, err)
	}

	checkin, err := ParseClock(fc.CheckinTime)
	if err != nil {
		return nil, fmt.Errorf("checkin_time: %w", err)
	}
	checkout, err := ParseClock(fc.CheckoutTime)
	if err != nil {
		return nil, fmt.Errorf("checkout_time: %w", err)
	}
	runTime, err := ParseClock(fc.RunTime)
	if err != nil {
		return nil, fmt.Errorf("run_time: %w", err)
	}

	if fc.ResolutionMode != ModeCurrentOrNext && fc.ResolutionMode != ModeArrivalDay {
		return nil, fmt.Errorf("unknown resolution_mode %q", fc.ResolutionMode)
	}

	if token := os.Getenv("NUKI_ACCESS_TOKEN"); token != "" {
		fc.Nuki.Token = token
	}
	if pw := os.Getenv("SMTP_PASSWORD"); pw != "" {
		fc.Mail.Password = pw
	}

	if fc.Nuki.Token == "" {
		return nil, fmt.Errorf("nuki token is not set (nuki.token or NUKI_ACCESS_TOKEN)")
	}
	if len(fc.Units) == 0 {
		return nil, fmt.Errorf("no units configured")
	}

	seen := make(map[string]bool)
	for i := range fc.Units {
		u := &fc.Units[i]
		if u.ID == "" {
			return nil, fmt.Errorf("units[%d]: id is not set", i)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("duplicate unit id %q", u.ID)
		}
		seen[u.ID] = true
		if u.Name == "" {
			u.Name = "Unit " + u.ID
		}
		if u.AuthName == "" {
			u.AuthName = "Guests"
		}
	}

	return &Config{
		Zone:             zone,
		Checkin:          checkin,
		Checkout:         checkout,
		RunTime:          runTime,
		ResolutionMode:   fc.ResolutionMode,
		LogDir:           fc.LogDir,
		LogRetentionDays: fc.LogRetentionDays,
		ForceSync:        fc.ForceSync,
		ArrivalColumn:    fc.Columns.Arrival,
		DepartureColumn:  fc.Columns.Departure,
		Nuki:             fc.Nuki,
		Drive:            fc.Drive,
		Mail:             fc.Mail,
		Units:            fc.Units,
	}, nil
}

func applyDefaults(fc *fileConfig) {
	if fc.Timezone == "" {
		fc.Timezone = "Europe/Amsterdam"
	}
	if fc.CheckinTime == "" {
		fc.CheckinTime = "15:00"
	}
	if fc.CheckoutTime == "" {
		fc.CheckoutTime = "11:00"
	}
	if fc.RunTime == "" {
		fc.RunTime = "05:00"
	}
	if fc.ResolutionMode == "" {
		fc.ResolutionMode = ModeCurrentOrNext
	}
	if fc.LogDir == "" {
		fc.LogDir = "/app/log"
	}
	if fc.LogRetentionDays <= 0 {
		fc.LogRetentionDays = 30
	}
	if fc.Columns.Arrival == "" {
		fc.Columns.Arrival = "Aankomstdatum"
	}
	if fc.Columns.Departure == "" {
		fc.Columns.Departure = "Vertrekdatum"
	}
	if fc.Nuki.BaseURL == "" {
		fc.Nuki.BaseURL = "https://api.nuki.io"
	}
	if fc.Nuki.Timeout <= 0 {
		fc.Nuki.Timeout = 20 * time.Second
	}
	if fc.Drive.TokenFile == "" {
		fc.Drive.TokenFile = "/secrets/token.json"
	}
	if fc.Drive.Timeout <= 0 {
		fc.Drive.Timeout = 20 * time.Second
	}
	if fc.Mail.Port == 0 {
		fc.Mail.Port = 587
	}
	if fc.Mail.From == "" {
		fc.Mail.From = fc.Mail.User
	}
	if fc.Mail.SubjectPrefix == "" {
		fc.Mail.SubjectPrefix = "Stay Lock Sync Report"
	}
}
