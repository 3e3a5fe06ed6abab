package validation

import (
	"strings"
	"testing"
	"time"
)

func TestValidateIdentifier_Valid(t *testing.T) {
	valid := []string{
		"metrics_abc123",
		"_private",
		"c_0123456789abcdef",
		"ab",
		"a" + strings.Repeat("b", 63),
	}

	for _, name := range valid {
		if err := ValidateIdentifier(name); err != nil {
			t.Errorf("ValidateIdentifier(%q): unexpected error: %v", name, err)
		}
	}
}

func TestValidateIdentifier_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"a", // too short: needs at least two characters
		"1abc",
		"Metrics",
		"metrics-abc",
		"metrics abc",
		"metrics;drop table x",
		`metrics"abc`,
		"a" + strings.Repeat("b", 64), // too long
		"таблица",
	}

	for _, name := range invalid {
		if err := ValidateIdentifier(name); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error, got nil", name)
		}
	}
}

func TestValidateIdentifiers(t *testing.T) {
	if err := ValidateIdentifiers([]string{"abc", "c_def0"}); err != nil {
		t.Fatalf("ValidateIdentifiers: %v", err)
	}

	if err := ValidateIdentifiers([]string{"abc", "DROP"}); err == nil {
		t.Fatal("expected error for unsafe identifier in set")
	}
}

func TestScalarNameOK(t *testing.T) {
	cases := map[string]bool{
		"loss":       true,
		"val/loss":   true,
		"  accuracy": true,
		"":           false,
		"   ":        false,
		"\t\n":       false,
	}

	for name, want := range cases {
		if got := ScalarNameOK(name); got != want {
			t.Errorf("ScalarNameOK(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestQuoteStringLiteral(t *testing.T) {
	if got := QuoteStringLiteral("plain"); got != "'plain'" {
		t.Errorf("QuoteStringLiteral(plain) = %s", got)
	}

	if got := QuoteStringLiteral("o'brien"); got != "'o''brien'" {
		t.Errorf("QuoteStringLiteral(o'brien) = %s", got)
	}
}

func TestTimestampLiteral(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123999999, loc)

	got := TimestampLiteral(ts)
	want := "'2024-03-01 10:30:45.123'"
	if got != want {
		t.Errorf("TimestampLiteral = %s, want %s", got, want)
	}
}

func TestEscapeLikePattern(t *testing.T) {
	if got := EscapeLikePattern("50%_done"); got != `50\%\_done` {
		t.Errorf("EscapeLikePattern = %s", got)
	}

	if got := SafeLikePrefix("metrics_"); got != `metrics\_%` {
		t.Errorf("SafeLikePrefix = %s", got)
	}
}
