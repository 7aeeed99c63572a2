package logger

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/yndnr/settree/internal/settings"
)

// Attribute names whose values are always redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"token",
	"credential",
	"master_key",
	"seal_key",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// maxValueLen bounds the logged rendering of a setting value.
const maxValueLen = 64

var sensitiveSubtrees atomic.Pointer[[]string]

// SetSensitive replaces the list of subtrees whose values Value redacts.
func SetSensitive(subtrees []string) {
	s := append([]string(nil), subtrees...)
	sensitiveSubtrees.Store(&s)
}

// IsSensitiveName reports whether the setting name lies in a sensitive
// subtree.
func IsSensitiveName(name string) bool {
	p := sensitiveSubtrees.Load()
	if p == nil {
		return false
	}
	for _, subtree := range *p {
		if settings.InSubtree(name, subtree) {
			return true
		}
	}
	return false
}

// Value returns an attribute describing the value of the setting name.
// Values in sensitive subtrees are replaced by their length.
func Value(name string, value []byte) slog.Attr {
	if IsSensitiveName(name) {
		return slog.String("value", fmt.Sprintf("%s (%d bytes)", redactedValue, len(value)))
	}
	if !utf8.Valid(value) {
		return slog.String("value", fmt.Sprintf("<%d bytes binary>", len(value)))
	}
	s := string(value)
	if len(s) > maxValueLen {
		s = s[:maxValueLen] + "..."
	}
	return slog.String("value", s)
}

// redactSensitive redacts string attributes whose name suggests a secret.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		if a.Value.String() != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		return a
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// IsSensitiveKey checks if an attribute name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
