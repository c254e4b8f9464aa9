package client

import (
	"net/url"
	"time"

	"github.com/dshills/vsbench/core"
)

// Naming selects the JSON field naming convention of the service
type Naming string

const (
	NamingCamel Naming = "camel"
	NamingSnake Naming = "snake"
)

// FilterForm selects how filter expressions are put on the wire
type FilterForm string

const (
	// FilterString sends the infix expression in a "filter" field
	FilterString FilterForm = "string"
	// FilterStructured sends a list of {field, operator, value} triples
	// plus the join operator
	FilterStructured FilterForm = "structured"
)

// Wire describes the request encoding the service expects
type Wire struct {
	Naming Naming     `yaml:"naming" json:"naming"`
	Filter FilterForm `yaml:"filter" json:"filter"`
}

// Config holds client configuration
type Config struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Wire           Wire          `yaml:"wire" json:"wire"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	RetryMax       int           `yaml:"retry_max" json:"retry_max"`
	RetryWaitMin   time.Duration `yaml:"retry_wait_min" json:"retry_wait_min"`
	RetryWaitMax   time.Duration `yaml:"retry_wait_max" json:"retry_wait_max"`
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8685",
		Wire: Wire{
			Naming: NamingCamel,
			Filter: FilterString,
		},
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
		RetryMax:       0,
		RetryWaitMin:   100 * time.Millisecond,
		RetryWaitMax:   time.Second,
	}
}

// Validate checks the client configuration
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return core.ConfigErrorf("invalid base URL %q: %v", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return core.ConfigErrorf("base URL must be http or https, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return core.ConfigErrorf("base URL %q has no host", c.BaseURL)
	}

	switch c.Wire.Naming {
	case NamingCamel, NamingSnake:
	default:
		return core.ConfigErrorf("unknown field naming %q", c.Wire.Naming)
	}

	switch c.Wire.Filter {
	case FilterString, FilterStructured:
	default:
		return core.ConfigErrorf("unknown filter form %q", c.Wire.Filter)
	}

	if c.ConnectTimeout < 0 || c.RequestTimeout < 0 {
		return core.ConfigErrorf("timeouts cannot be negative")
	}
	if c.RetryMax < 0 {
		return core.ConfigErrorf("retry_max cannot be negative, got %d", c.RetryMax)
	}

	return nil
}
