package secrets

// DefaultRules returns the default detection rules. The set is tuned for
// what realistically lands in pipeline context: provider API keys, auth
// headers, connection strings, and key material pasted into payloads.
func DefaultRules() []Rule {
	return []Rule{
		// API keys
		{
			ID:          "generic-api-key",
			Description: "Generic API Key",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,64})['"]?`,
			Keywords:    []string{"api", "key"},
			Severity:    "high",
		},
		{
			ID:          "generic-secret",
			Description: "Generic Secret",
			Pattern:     `(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{8,})['"]?`,
			Keywords:    []string{"secret", "password"},
			Severity:    "high",
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API Key",
			Pattern:     `sk-[A-Za-z0-9]{48,}`,
			Keywords:    []string{"openai", "sk-"},
			Severity:    "high",
		},

		// GitHub (prefixes are self-identifying)
		{
			ID:          "github-token",
			Description: "GitHub Access Token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}`,
			Severity:    "high",
		},
		{
			ID:          "github-fine-grained",
			Description: "GitHub Fine-grained Personal Access Token",
			Pattern:     `github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    "high",
		},

		// Auth headers
		{
			ID:          "bearer-token",
			Description: "Bearer Token in Authorization Header",
			Pattern:     `(?i)(?:authorization|bearer)\s*[:=]\s*['"]?bearer\s+([A-Za-z0-9_\-\.]{20,})['"]?`,
			Keywords:    []string{"authorization", "bearer"},
			Severity:    "medium",
		},
		{
			ID:          "basic-auth-header",
			Description: "Basic Auth in Authorization Header",
			Pattern:     `(?i)authorization\s*[:=]\s*['"]?basic\s+([A-Za-z0-9+/=]{16,})['"]?`,
			Keywords:    []string{"authorization", "basic"},
			Severity:    "high",
		},

		// Connection URLs with inline credentials
		{
			ID:          "connection-string",
			Description: "Connection URL with credentials",
			Pattern:     `(?i)(?:postgres|postgresql|mysql|mongodb|redis|amqp|nats)://[^:\s]+:[^@\s]+@[^\s]+`,
			Severity:    "high",
		},

		// Key material
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Severity:    "high",
		},

		// JWT (eyJ prefix is a base64 encoded JSON header)
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},

		// Environment variables with sensitive names
		{
			ID:          "env-credential",
			Description: "Environment Variable with Credential",
			Pattern:     `(?i)(?:^|[^A-Za-z0-9_])(?:DB_PASSWORD|DATABASE_PASSWORD|POSTGRES_PASSWORD|REDIS_PASSWORD|API_SECRET|APP_SECRET|SECRET_KEY|ENCRYPTION_KEY|PRIVATE_KEY|AUTH_TOKEN|ACCESS_TOKEN|REFRESH_TOKEN|NATS_PASSWORD)\s*[:=]\s*['"]?([^\s'"]{8,})['"]?`,
			Severity:    "high",
		},
	}
}
