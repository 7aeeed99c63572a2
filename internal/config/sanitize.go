package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for display.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.Log.Sensitive = append([]string(nil), cfg.Log.Sensitive...)

	if sanitized.Security.EncryptionKey != "" {
		sanitized.Security.EncryptionKey = maskSecret(sanitized.Security.EncryptionKey)
	}
	if sanitized.Security.Passphrase != "" {
		sanitized.Security.Passphrase = "****"
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
