package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andykuo1/progress-auditor-sub001/factory"
	"github.com/andykuo1/progress-auditor-sub001/generic"
)

// FileName is the config file looked up in a workspace.
const FileName = "auditor.yml"

// Config models auditor.yml.
type Config struct {
	Inputs struct {
		Roster      string `yaml:"roster"`
		Vacations   string `yaml:"vacations"`
		Submissions string `yaml:"submissions"`
		Reviews     string `yaml:"reviews"`
	} `yaml:"inputs"`
	Outputs struct {
		Dir string `yaml:"dir"`
		DB  string `yaml:"db"`
	} `yaml:"outputs"`
	Schedule struct {
		Threshold    int    `yaml:"threshold"`
		SlipsPerWeek int    `yaml:"slips_per_week"`
		Intro        bool   `yaml:"intro"`
		WeekPattern  string `yaml:"week_pattern"`
		// ZoneOffsetHours is the UTC offset due dates are judged in.
		ZoneOffsetHours int `yaml:"zone_offset_hours"`
	} `yaml:"schedule"`
	Server struct {
		Addr    string        `yaml:"addr"`
		Refresh time.Duration `yaml:"refresh"`
	} `yaml:"server"`
	// Today overrides the current date (YYYY-MM-DD). Empty means now.
	Today string `yaml:"today"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with auditor init", path)
		}
		return nil, err
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// FromFile reads YAML config from the given path. Relative input and
// output paths are resolved against the file's directory.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// FromYAML parses and validates config from raw YAML bytes. Keys left out
// keep their Default value.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Inputs.Roster == "" {
		return fmt.Errorf("config.inputs.roster is required")
	}
	if c.Schedule.Threshold < 0 || c.Schedule.Threshold > 6 {
		return fmt.Errorf("config.schedule.threshold must be between 0 and 6")
	}
	if c.Schedule.SlipsPerWeek < 0 {
		return fmt.Errorf("config.schedule.slips_per_week must not be negative")
	}
	if c.Schedule.ZoneOffsetHours < -12 || c.Schedule.ZoneOffsetHours > 14 {
		return fmt.Errorf("config.schedule.zone_offset_hours must be between -12 and 14")
	}
	if c.Schedule.WeekPattern != "" {
		if _, err := regexp.Compile(c.Schedule.WeekPattern); err != nil {
			return fmt.Errorf("config.schedule.week_pattern: %w", err)
		}
	}
	if c.Today != "" {
		if _, err := generic.ParseDate(c.Today); err != nil {
			return fmt.Errorf("config.today must be YYYY-MM-DD: %w", err)
		}
	}
	if c.Server.Refresh < 0 {
		return fmt.Errorf("config.server.refresh must not be negative")
	}
	return nil
}

// FactoryInputs returns the input paths in the shape the loader takes.
func (c *Config) FactoryInputs() factory.Inputs {
	return factory.Inputs{
		Roster:      c.Inputs.Roster,
		Vacations:   c.Inputs.Vacations,
		Submissions: c.Inputs.Submissions,
		Reviews:     c.Inputs.Reviews,
	}
}

// Zone is the location due dates are judged in.
func (c *Config) Zone() *time.Location {
	if c.Schedule.ZoneOffsetHours == -12 {
		return generic.LatestZone
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.Schedule.ZoneOffsetHours), c.Schedule.ZoneOffsetHours*60*60)
}

// Now is the instant the audit is judged at: the end of Today in Zone, or
// the wall clock.
func (c *Config) Now() time.Time {
	if c.Today == "" {
		return time.Now()
	}
	tp, err := generic.ParseDate(c.Today)
	if err != nil {
		return time.Now()
	}
	y, m, d := tp.Time.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, c.Zone())
}

func (c *Config) resolve(base string) {
	for _, p := range []*string{
		&c.Inputs.Roster, &c.Inputs.Vacations, &c.Inputs.Submissions, &c.Inputs.Reviews,
		&c.Outputs.Dir, &c.Outputs.DB,
	} {
		if *p != "" && !filepath.IsAbs(*p) && *p != ":memory:" {
			*p = filepath.Join(base, *p)
		}
	}
}

const defaultTemplate = `inputs:
  roster: roster.csv
  vacations: vacations.csv
  submissions: submissions.csv
  reviews: reviews.csv

outputs:
  dir: out
  db: auditor.db

schedule:
  threshold: 3
  slips_per_week: 3
  intro: true
  week_pattern: ""
  zone_offset_hours: -12

server:
  addr: ":8080"
  refresh: 0s

today: ""
`
