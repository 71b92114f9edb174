package config

import "strings"

// Environment represents different deployment environments
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Test        Environment = "test"
)

// ParseEnvironment maps APP_ENV spellings to an Environment. Unknown values
// are treated as development.
func ParseEnvironment(value string) Environment {
	switch strings.ToLower(value) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	case "test", "testing":
		return Test
	default:
		return Development
	}
}
