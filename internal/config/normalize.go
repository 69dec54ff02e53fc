package config

import (
	"regexp"
	"strings"
)

const defaultRedisPrefix = "aivoice"

var (
	validPrefixRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_:-]{0,63}$`)
	invalidChars  = regexp.MustCompile(`[^a-z0-9_:-]+`)
	leadingDash   = regexp.MustCompile(`^[-:]+`)
	trailingDash  = regexp.MustCompile(`[-:]+$`)
)

var backendAliases = map[string]string{
	"json":       "file",
	"pg":         "postgres",
	"postgresql": "postgres",
	"sqlite3":    "sqlite",
}

// NormalizeBackend lowercases a backend name and resolves aliases
// ("pg", "postgresql", "sqlite3", "json").
func NormalizeBackend(name string) string {
	b := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := backendAliases[b]; ok {
		return alias
	}
	return b
}

// NormalizeRedisPrefix converts a user-provided prefix into a safe key prefix:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_:-] allowed
//   - Invalid chars replaced with "-"
//   - Leading/trailing separators stripped
//   - Empty result defaults to "aivoice"
func NormalizeRedisPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return defaultRedisPrefix
	}

	lower := strings.ToLower(trimmed)
	if validPrefixRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = result[:64]
	}

	if result == "" {
		return defaultRedisPrefix
	}
	return result
}

// Normalize trims and lowercases enum-like fields and fills the ones left
// empty in the file.
func (c *Config) Normalize() {
	lowerTrim := func(s *string) { *s = strings.ToLower(strings.TrimSpace(*s)) }

	c.OneBot.WSURL = strings.TrimSpace(c.OneBot.WSURL)
	lowerTrim(&c.Provider.Type)
	if c.Provider.Type == "" {
		c.Provider.Type = "openai"
	}
	c.Provider.APIBase = strings.TrimRight(strings.TrimSpace(c.Provider.APIBase), "/")

	lowerTrim(&c.Pipeline.EmptyPolicy)
	lowerTrim(&c.Pipeline.CoSendChain)

	c.Store.Backend = NormalizeBackend(c.Store.Backend)
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	c.Store.RedisPrefix = NormalizeRedisPrefix(c.Store.RedisPrefix)

	lowerTrim(&c.Logging.Level)
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	lowerTrim(&c.Logging.Format)
	lowerTrim(&c.Telemetry.Protocol)

	for _, t := range []*string{
		&c.Commands.Prefix, &c.Commands.ListCharacters, &c.Commands.ToggleSpeech,
		&c.Commands.SetDefault, &c.Commands.ToggleCoSend, &c.Commands.Help,
	} {
		*t = strings.TrimSpace(*t)
	}
}
