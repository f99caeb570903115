package config

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	stepTypes     = map[string]struct{}{"wait": {}, "send_email": {}}
	storeDrivers  = map[string]struct{}{"memory": {}, "file": {}, "sqlite": {}, "postgres": {}, "redis": {}}
)

// validatorInstance configures and returns the shared validator instance used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("step_type", func(fl validator.FieldLevel) bool {
			_, ok := stepTypes[strings.ToLower(fl.Field().String())]
			return ok
		})

		_ = v.RegisterValidation("store_driver", func(fl validator.FieldLevel) bool {
			_, ok := storeDrivers[fl.Field().String()]
			return ok
		})

		validateInst = v
	})

	return validateInst
}
