package security

import (
	"os"
	"strings"
)

// sensitiveEnvPrefixes are environment variable prefixes that are never
// exposed to tools, allowlist or not. The allowlist grants visibility; this
// denylist is the hard floor underneath it.
var sensitiveEnvPrefixes = []string{
	"OPENAI_",
	"ANTHROPIC_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"SMTP_PASSWORD",
}

// sensitiveEnvExact are names blocked by exact match. DATABASE_URL and
// DB_PASSWORD are exact-only to avoid over-blocking variables like DB_PORT
// or DATABASE_HOST which share the same prefix.
var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
	"REDIS_PASSWORD":        {},
}

// FilterEnv returns the host environment restricted to the allowlisted
// names. Sensitive names are dropped even when allowlisted; an empty
// allowlist yields an empty map, never the full environment.
func FilterEnv(allowlist []string) map[string]string {
	out := make(map[string]string, len(allowlist))
	for _, name := range allowlist {
		if name == "" || IsSensitiveEnvVar(name) {
			continue
		}
		if value, ok := os.LookupEnv(name); ok {
			out[name] = value
		}
	}
	return out
}

// IsSensitiveEnvVar checks whether an environment variable name matches a
// known sensitive prefix or exact name.
func IsSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}
	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
