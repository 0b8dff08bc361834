// Package validator provides struct validation utilities with custom
// validators for the scanning domain.
package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/forgescan/api/pkg/domain/asset"
	"github.com/forgescan/api/pkg/domain/evidence"
	"github.com/forgescan/api/pkg/domain/finding"
	"github.com/forgescan/api/pkg/domain/scan"
	"github.com/forgescan/api/pkg/domain/shared"
)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("severity", validateSeverity)
	_ = v.RegisterValidation("finding_status", validateFindingStatus)
	_ = v.RegisterValidation("scan_type", validateScanType)
	_ = v.RegisterValidation("schedule_type", validateScheduleType)
	_ = v.RegisterValidation("asset_type", validateAssetType)
	_ = v.RegisterValidation("data_sensitivity", validateDataSensitivity)
	_ = v.RegisterValidation("evidence_type", validateEvidenceType)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors on failure.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}
	return result
}

func validateSeverity(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, err := shared.ParseSeverity(value)
	return err == nil
}

func validateFindingStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return finding.Status(value).IsValid()
}

func validateScanType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return scan.Type(value).IsValid()
}

func validateScheduleType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	switch scan.ScheduleType(value) {
	case scan.ScheduleManual, scan.ScheduleDaily, scan.ScheduleWeekly, scan.ScheduleMonthly, scan.ScheduleCrontab:
		return true
	}
	return false
}

func validateAssetType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return asset.Type(value).IsValid()
}

func validateDataSensitivity(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return asset.Sensitivity(value).IsValid()
}

func validateEvidenceType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return evidence.Type(value).IsValid()
}

// formatErrorMessage converts validation errors to human-readable messages.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "severity":
		return "must be one of: critical, high, medium, low, info"
	case "finding_status":
		return "must be one of: open, fixed, false_positive, risk_accepted"
	case "scan_type":
		return "must be one of: web, api, sca"
	case "schedule_type":
		return "must be one of: manual, daily, weekly, monthly, crontab"
	case "asset_type":
		return "must be one of: REVENUE, COMPLIANCE, OPERATIONAL, ANALYTICS, ARCHIVE"
	case "data_sensitivity":
		return "must be one of: PUBLIC, INTERNAL, PII, PCI, PHI"
	case "evidence_type":
		return "must be one of: SCAN, ENFORCEMENT, REMEDIATION, CI_DECISION"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// toSnakeCase converts PascalCase/camelCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
