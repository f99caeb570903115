package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	cadenceerrors "github.com/alexisbeaulieu97/cadence/pkg/errors"
)

// ValidateAppConfig performs schema validation on the runtime configuration.
func ValidateAppConfig(cfg *AppConfig) error {
	if cfg == nil {
		return cadenceerrors.NewValidationError("config", "configuration is nil", nil)
	}
	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}
	return nil
}

// ValidateCadenceFile performs schema and cross-field validation on a cadence file.
func ValidateCadenceFile(file *CadenceFile) error {
	if file == nil {
		return cadenceerrors.NewValidationError("cadence", "cadence is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(file); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(file.Steps))
	for i, step := range file.Steps {
		if prev, exists := seen[step.ID]; exists {
			return cadenceerrors.NewValidationError(fieldForStep(i, "id"),
				fmt.Sprintf("duplicate step id %q (first used by steps[%d])", step.ID, prev), nil)
		}
		seen[step.ID] = i

		if err := ValidateStep(i, step); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStep checks variant-specific fields of a single step.
func ValidateStep(index int, step StepSpec) error {
	switch strings.ToLower(step.Type) {
	case "wait":
		if step.Seconds <= 0 {
			return cadenceerrors.NewValidationError(fieldForStep(index, "seconds"), "wait steps need a positive number of seconds", nil)
		}
		if step.Seconds > cadence.MaxWaitSeconds {
			return cadenceerrors.NewValidationError(fieldForStep(index, "seconds"), fmt.Sprintf("wait steps cannot exceed %d seconds", cadence.MaxWaitSeconds), nil)
		}
		if step.Subject != "" || step.Body != "" {
			return cadenceerrors.NewValidationError(fieldForStep(index, "type"), "wait steps do not take a subject or body", nil)
		}
	case "send_email":
		if step.Seconds != 0 {
			return cadenceerrors.NewValidationError(fieldForStep(index, "seconds"), "send_email steps do not take seconds", nil)
		}
	default:
		return cadenceerrors.NewValidationError(fieldForStep(index, "type"), fmt.Sprintf("unsupported step type %q", step.Type), nil)
	}
	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return cadenceerrors.NewValidationError(field, msg, err)
	}

	return cadenceerrors.NewValidationError("config", err.Error(), err)
}

// yamlishFieldName turns "AppConfig.Store.MaxIdleConns" into
// "store.max_idle_conns" and "CadenceFile.Steps[1].Seconds" into
// "steps[1].seconds".
func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = snakeCase(part)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] != '[' {
				prev := rune(s[i-1])
				if prev < 'A' || prev > 'Z' || (i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z') {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}
