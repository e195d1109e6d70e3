package config

import (
	"slices"
	"strings"
)

// RedactedConfig returns a copy of cfg with sensitive fields replaced by
// "***", safe to log.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Private keys often ride along in RPC URLs as a query parameter.
	if out.RPC.URL != "" {
		out.RPC.URL = redactQuery(out.RPC.URL)
	}

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Wallets = slices.Clone(cfg.Wallets)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Protocol.Instruments = slices.Clone(cfg.Protocol.Instruments)
	out.Protocol.Tokens = slices.Clone(cfg.Protocol.Tokens)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactQuery keeps scheme, host and path but hides the query string.
func redactQuery(u string) string {
	if base, _, ok := strings.Cut(u, "?"); ok {
		return base + "?" + redacted
	}
	return u
}
