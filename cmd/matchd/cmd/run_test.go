package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func setBaselineRunFlags() {
	viper.Set("type", "invoice")
	viper.Set("database-url", "postgres://matchd@localhost:5432/settlements")
	viper.Set("output-format", "console")
}

func TestValidateRunFlags(t *testing.T) {
	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
	}{
		{
			name:        "valid flags",
			setupFlags:  setBaselineRunFlags,
			expectError: false,
		},
		{
			name: "payslip type",
			setupFlags: func() {
				setBaselineRunFlags()
				viper.Set("type", "payslip")
			},
			expectError: false,
		},
		{
			name: "unknown record type",
			setupFlags: func() {
				setBaselineRunFlags()
				viper.Set("type", "receipt")
			},
			expectError:   true,
			errorContains: "record type",
		},
		{
			name: "missing database url",
			setupFlags: func() {
				setBaselineRunFlags()
				viper.Set("database-url", "")
			},
			expectError:   true,
			errorContains: "database URL",
		},
		{
			name: "unsupported output format",
			setupFlags: func() {
				setBaselineRunFlags()
				viper.Set("output-format", "xml")
			},
			expectError:   true,
			errorContains: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			tt.setupFlags()

			err := validateRunFlags(runCmd, nil)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error containing %q, got %q", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateRunFlagsBindsValues(t *testing.T) {
	viper.Reset()
	setBaselineRunFlags()
	viper.Set("records", []string{"inv-001", "inv-002"})
	viper.Set("auto-apply", true)
	viper.Set("profile", "strict")
	viper.Set("entity-rules", []string{"acme=Travel Desk"})

	if err := validateRunFlags(runCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recordIDs) != 2 || recordIDs[0] != "inv-001" {
		t.Errorf("expected record IDs to be bound, got %v", recordIDs)
	}
	if !autoApply {
		t.Error("expected auto-apply to be bound")
	}
	if profile != "strict" {
		t.Errorf("expected profile strict, got %q", profile)
	}
	if len(entityRules) != 1 || entityRules[0] != "acme=Travel Desk" {
		t.Errorf("expected entity rules to be bound, got %v", entityRules)
	}
}
