// Package validation provides centralized input validation for the tracker
// scalar store.
//
// Table and column identifiers are embedded as literals in generated SQL,
// never as bound parameters, so every name must pass through this package
// before interpolation. The same applies to the literal-escaping helpers for
// the few places where a data value cannot be bound.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// =============================================================================
// Identifier Validation
// =============================================================================

// identPattern is the grammar every generated table or column name must
// satisfy: a leading lower-case letter or underscore, then 1-63 further
// lower-case letters, digits, or underscores.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{1,63}$`)

// ValidateIdentifier validates a table or column identifier against the
// strict grammar. It returns an error for anything that is not provably safe
// to interpolate into SQL text.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identPattern.MatchString(name) {
		return fmt.Errorf("identifier %q does not match %s", name, identPattern.String())
	}
	return nil
}

// ValidateIdentifiers validates a set of identifiers, reporting the first
// offender.
func ValidateIdentifiers(names []string) error {
	for _, name := range names {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Scalar Name Validation
// =============================================================================

// ScalarNameOK reports whether a user-supplied scalar name is loggable.
// Empty and whitespace-only names are dropped by the ingest path with a
// warning; they never fail a call.
func ScalarNameOK(name string) bool {
	return strings.TrimSpace(name) != ""
}

// =============================================================================
// Literal Escaping
// =============================================================================

// QuoteStringLiteral returns a single-quoted SQL string literal with embedded
// quotes doubled. Use only where a value genuinely cannot be bound.
func QuoteStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// TimestampLiteral formats a timestamp as a quoted SQL literal in UTC,
// truncated to millisecond precision. All stored timestamps use this form.
func TimestampLiteral(t time.Time) string {
	return "'" + t.UTC().Truncate(time.Millisecond).Format("2006-01-02 15:04:05.000") + "'"
}

// =============================================================================
// LIKE Pattern Escaping
// =============================================================================

var sqlLikeMetaChars = regexp.MustCompile(`[%_\[\]\\]`)

// EscapeLikePattern escapes special characters in a LIKE pattern.
func EscapeLikePattern(pattern string) string {
	return sqlLikeMetaChars.ReplaceAllStringFunc(pattern, func(s string) string {
		return "\\" + s
	})
}

// SafeLikePrefix creates a safe LIKE prefix pattern.
func SafeLikePrefix(prefix string) string {
	return EscapeLikePattern(prefix) + "%"
}
