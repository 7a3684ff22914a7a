package httphandler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator. Field names in error messages
// come from the query or json tag so they match what the client sent.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"query", "json"} {
				if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
	return validate
}

// validateRequest validates v and returns a client-facing message, or "" when
// v is valid.
func validateRequest(v any) string {
	err := getValidator().Struct(v)
	if err == nil {
		return ""
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request"
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return strings.Join(messages, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// queryInt reads an integer query parameter, falling back to def when the
// parameter is absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// userQuery identifies the user a request acts on.
type userQuery struct {
	UserID string `query:"user_id" validate:"required,max=255"`
}

type syncQuery struct {
	UserID string `query:"user_id" validate:"required,max=255"`
	Days   int    `query:"days" validate:"min=1,max=365"`
}

type activitiesQuery struct {
	UserID       string `query:"user_id" validate:"required,max=255"`
	Days         int    `query:"days" validate:"min=1,max=365"`
	ActivityType string `query:"activity_type" validate:"omitempty,max=64"`
	Limit        int    `query:"limit" validate:"min=1,max=500"`
}

type metricsQuery struct {
	UserID     string `query:"user_id" validate:"required,max=255"`
	MetricType string `query:"metric_type" validate:"required,oneof=heart_rate sleep body_composition stress"`
	Days       int    `query:"days" validate:"min=1,max=365"`
}

type summaryQuery struct {
	UserID string `query:"user_id" validate:"required,max=255"`
	Days   int    `query:"days" validate:"min=1,max=365"`
}

// CredentialsRequest is the JSON body for storing upstream credentials.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}
