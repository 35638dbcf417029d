// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the struct tags of cfg and reports every failing field.
func Validate(cfg *AppConfig) error {
	return describe(validatorInstance().Struct(cfg))
}

// ValidateAnalyzer checks analyzer tuning on its own.
func ValidateAnalyzer(settings AnalyzerSettings) error {
	return describe(validatorInstance().Struct(settings))
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(parts, ", "))
}
