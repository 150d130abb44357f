package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vinodismyname/sheetmind/pkg/pagination"
)

var (
	v    *validator.Validate
	once sync.Once

	// Optional sheet qualifier ('My Sheet'!A1 or Sheet1!A1) then an A1 cell.
	cellRefRe = regexp.MustCompile(`^(?:(?:'[^']+'|[A-Za-z0-9_ ]+)!)?\$?[A-Za-z]{1,3}\$?[0-9]+$`)
	// Cell range, whole columns, or an open-ended tail like A2:A.
	a1RangeRe = regexp.MustCompile(`^(?:(?:'[^']+'|[A-Za-z0-9_ ]+)!)?\$?[A-Za-z]{1,3}\$?[0-9]*(?::\$?[A-Za-z]{1,3}\$?[0-9]*)?$`)
)

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Custom: a single A1 cell, optionally sheet-qualified
		_ = v.RegisterValidation("cellref", func(fl validator.FieldLevel) bool {
			return cellRefRe.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		// Custom: an A1 range
		_ = v.RegisterValidation("a1range", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			return s != "" && a1RangeRe.MatchString(s)
		})
		// Custom: formulas start with = and carry a body
		_ = v.RegisterValidation("formula", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			return len(s) > 1 && strings.HasPrefix(s, "=")
		})
		// Custom: plan tier
		_ = v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
			switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
			case "", "free", "pro", "team":
				return true
			}
			return false
		})
		// Custom: routing mode override
		_ = v.RegisterValidation("mode", func(fl validator.FieldLevel) bool {
			switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
			case "", "auto", "chat", "action":
				return true
			}
			return false
		})
		// Custom: cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // empty is allowed; use omitempty with this tag
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without":
		return fmt.Sprintf("VALIDATION: %s is required (or supply %s)", field, strings.ToLower(fe.Param()))
	case "cellref":
		return fmt.Sprintf("VALIDATION: %s must be a cell like B2 or 'Sheet 1'!B2", field)
	case "a1range":
		return fmt.Sprintf("VALIDATION: %s must be a range like A1:D50", field)
	case "formula":
		return fmt.Sprintf("FORMULA_INVALID: %s must start with =", field)
	case "tier":
		return "VALIDATION: tier must be one of free, pro, team"
	case "mode":
		return "VALIDATION: mode must be one of auto, chat, action"
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination"
	case "oneof":
		return fmt.Sprintf("VALIDATION: %s must be one of %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("VALIDATION: %s must be a URL", field)
	case "min", "max", "gte", "lte", "gt", "lt":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}
