// Package config assembles the runtime configuration of the matchd CLI
// from flags, environment and optional config file values.
package config

import (
	"fmt"
	"strings"
	"time"

	"settlement-matching-service/internal/matcher"
	"settlement-matching-service/internal/parsers"
	"settlement-matching-service/internal/store"
	"settlement-matching-service/internal/verify"
)

// MatchingOverrides are the per-invocation knobs exposed on the command
// line. Zero values leave the profile defaults untouched.
type MatchingOverrides struct {
	AmountTolerancePercent float64
	DateGraceDays          int
	HighThreshold          float64
	MediumThreshold        float64
	MaxPendingPerRecord    int
}

// CreateMatcherConfig builds the matching configuration for the named
// profile with any command-line overrides applied.
func CreateMatcherConfig(profile string, overrides MatchingOverrides) (*matcher.Config, error) {
	var config *matcher.Config
	switch profile {
	case "", "default":
		config = matcher.DefaultConfig()
	case "strict":
		config = matcher.StrictConfig()
	case "relaxed":
		config = matcher.RelaxedConfig()
	default:
		return nil, fmt.Errorf("unknown matching profile %q (expected default, strict or relaxed)", profile)
	}

	if overrides.AmountTolerancePercent > 0 {
		config.AmountTolerancePercent = overrides.AmountTolerancePercent
	}
	if overrides.DateGraceDays > 0 {
		config.DateGraceDays = overrides.DateGraceDays
	}
	if overrides.HighThreshold > 0 {
		config.HighThreshold = overrides.HighThreshold
	}
	if overrides.MediumThreshold > 0 {
		config.MediumThreshold = overrides.MediumThreshold
	}
	if overrides.MaxPendingPerRecord > 0 {
		config.MaxPendingPerRecord = overrides.MaxPendingPerRecord
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching configuration: %w", err)
	}

	return config, nil
}

// CreateStoreConfig builds the database configuration.
func CreateStoreConfig(databaseURL string) (*store.Config, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required (flag --database-url or MATCHD_DATABASE_URL)")
	}

	return &store.Config{
		URL:             databaseURL,
		MaxConns:        8,
		ConnMaxLifetime: 30 * time.Minute,
	}, nil
}

// CreateVerifierConfig builds the verification client configuration.
// An empty endpoint disables verification entirely.
func CreateVerifierConfig(endpoint, apiKey string, timeout time.Duration) (*verify.ClientConfig, error) {
	if endpoint == "" {
		return nil, nil
	}

	config := verify.DefaultClientConfig(endpoint)
	config.APIKey = apiKey
	if timeout > 0 {
		config.Timeout = timeout
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verification configuration: %w", err)
	}

	return config, nil
}

// CreateEntityResolver builds the entity resolver from an optional rules
// CSV file plus "pattern=entity" rule strings. Inline rules are added
// after the file so they take lower precedence than operator-maintained
// rules.
func CreateEntityResolver(rulesFile string, rules []string) (*matcher.EntityResolver, error) {
	resolver := matcher.NewEntityResolver(nil)
	if rulesFile != "" {
		loaded, err := parsers.NewEntityRulesParser(nil).ParseFile(rulesFile)
		if err != nil {
			return nil, err
		}
		resolver = loaded
	}

	for _, rule := range rules {
		parts := strings.SplitN(rule, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid entity rule %q (expected pattern=entity)", rule)
		}
		if err := resolver.AddRule(parts[0], parts[1]); err != nil {
			return nil, err
		}
	}

	return resolver, nil
}
