package parsers

import (
	"strings"
	"testing"
)

func TestParseEntityRules(t *testing.T) {
	input := `pattern,entity
# travel vendors
acme|globex,Travel Desk
payroll\s+co,Payroll
`

	resolver, err := NewEntityRulesParser(nil).Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tests := []struct {
		text string
		want string
	}{
		{"wire to ACME corp", "Travel Desk"},
		{"Globex settlement", "Travel Desk"},
		{"Payroll Co monthly", "Payroll"},
		{"unrelated vendor", ""},
	}

	for _, tt := range tests {
		if got := resolver.Resolve(tt.text); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestParseEntityRulesWithoutHeader(t *testing.T) {
	config := DefaultEntityRulesConfig()
	config.HasHeader = false

	resolver, err := NewEntityRulesParser(config).Parse(strings.NewReader("acme,Travel Desk\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := resolver.Resolve("acme corp"); got != "Travel Desk" {
		t.Errorf("Resolve = %q, want Travel Desk", got)
	}
}

func TestParseEntityRulesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing header columns", "foo,bar\nacme,Travel Desk\n"},
		{"missing entity value", "pattern,entity\nacme,\n"},
		{"invalid regex", "pattern,entity\n[unclosed,Travel Desk\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEntityRulesParser(nil).Parse(strings.NewReader(tt.input)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := NewEntityRulesParser(nil).ParseFile("/nonexistent/rules.csv"); err == nil {
		t.Error("Expected error for missing file")
	}
}
