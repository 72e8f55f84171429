package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wbrown/janus-cep/cep/sqlite"
)

// Duration decodes Go duration strings ("500ms", "2s") from YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// Scenario describes one benchmark run: the rule population, the event
// stream shape, and the static-data and cache configuration.
type Scenario struct {
	NumRules  int `yaml:"num_rules"`
	NumDefs   int `yaml:"num_defs"`
	NumPreds  int `yaml:"num_preds"`
	NumEvents int `yaml:"num_events"`

	EachProb  float64 `yaml:"each_prob"`
	FirstProb float64 `yaml:"first_prob"`

	MinWindow Duration `yaml:"min_window"`
	MaxWindow Duration `yaml:"max_window"`

	Consuming   bool    `yaml:"consuming"`
	QueueLen    int     `yaml:"queue_len"`
	EventsPerSec int    `yaml:"events_per_sec"`
	StaticProb  float64 `yaml:"static_prob"`

	TableColumns  int `yaml:"table_columns"`
	MatchingRows  int `yaml:"matching_rows"`
	MatchingRange int `yaml:"matching_range"`

	Workers int `yaml:"workers"`
	Seed    int64 `yaml:"seed"`

	Sqlite sqlite.Config `yaml:"sqlite"`
}

// DefaultScenario mirrors the stock extended-benchmark configuration
func DefaultScenario() Scenario {
	return Scenario{
		NumRules:      1000,
		NumDefs:       100,
		NumPreds:      3,
		NumEvents:     50_000,
		EachProb:      1.0,
		FirstProb:     0.0,
		MinWindow:     Duration(time.Second),
		MaxWindow:     Duration(3 * time.Second),
		Consuming:     false,
		QueueLen:      250,
		EventsPerSec:  3000,
		StaticProb:    0.2,
		TableColumns:  1,
		MatchingRows:  10,
		MatchingRange: 300,
		Workers:       4,
		Seed:          1,
		Sqlite: sqlite.Config{
			DBFile:         "./database.db",
			PoolSize:       10,
			CacheSize:      250,
			CacheOwnership: sqlite.PerPredicate,
			CacheType:      sqlite.CacheLru,
		},
	}
}

// LoadScenario reads a YAML scenario file over the defaults
func LoadScenario(path string) (Scenario, error) {
	scenario := DefaultScenario()
	if path == "" {
		return scenario, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return scenario, fmt.Errorf("reading scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return scenario, fmt.Errorf("parsing scenario: %w", err)
	}
	return scenario, nil
}
