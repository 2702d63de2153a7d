// Package config assembles a scan run's configuration from the
// environment, per spec.md 6's enumerated variables, and validates it
// before any target starts, reusing the validator singleton
// internal/platform/net/http/bind.Get() initializes for request DTOs.
package config

import (
	"fmt"

	"codecat/internal/platform/net/http/bind"

	"github.com/go-playground/validator/v10"
)

// RunConfig is the fully-resolved configuration for one invocation,
// independent of which subcommand (github/gitlab/azure/merge) is running.
type RunConfig struct {
	OutputDir        string `validate:"required"`
	CatalogJSONFile  string `validate:"required"`
	ExemptedCSVFile  string `validate:"required"`
	PrivateIDCSVFile string `validate:"required"`
	AgencyName       string `validate:"required"`

	InstructionsURL   string `validate:"omitempty,url"`
	ExemptedNoticeURL string `validate:"omitempty,url"`
	PrivateContact    string `validate:"omitempty,email"`
	PublicContact     string `validate:"omitempty,email"`

	Workers        int     `validate:"min=1"`
	SafetyFactor   float64 `validate:"gt=0,lte=1"`
	MinDelaySecs   float64 `validate:"gte=0"`
	MaxDelaySecs   float64 `validate:"gtefield=MinDelaySecs"`
	HoursPerCommit float64 `validate:"gte=0"`

	AIEnabled bool
	AIModel   string `validate:"required_if=AIEnabled true"`
}

// Validate runs struct-tag validation over cfg, translating the first
// failure into a human-readable message the CLI can print before any
// target starts.
func Validate(cfg RunConfig) error {
	if err := bind.Get().Validator.Struct(cfg); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return fmt.Errorf("invalid run configuration: %w", err)
		}
		field, msg := bind.ValidationFieldAndMessage(err)
		if field == "" {
			return fmt.Errorf("invalid run configuration: %s", msg)
		}
		return fmt.Errorf("invalid run configuration: %s: %s", field, msg)
	}
	return nil
}
