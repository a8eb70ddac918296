// Package appconf holds the configuration of the HTTP server.
package appconf

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFlagToEnvironment maps the --env flag value to an Environment. Unknown values are treated as
// development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "test":
		return Test
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// Config holds all the configuration settings for the server.
type Config struct {
	Env       Environment
	Port      int
	ApiKeys   []string
	RateLimit int // requests per second per API key
}

// Validate checks ranges. Production requires at least one API key.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.RateLimit, validation.Min(0)),
		validation.Field(&c.ApiKeys, validation.When(c.Env == Production, validation.Required)),
	)
}

// ParseApiKeys splits a comma separated list, trimming blanks
func ParseApiKeys(list string) []string {
	var keys []string
	for _, key := range strings.Split(list, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
