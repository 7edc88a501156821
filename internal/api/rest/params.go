package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	domainErrors "github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("eventtype", func(fl validator.FieldLevel) bool {
		_, ok := audit.ParseEventType(fl.Field().String())
		return ok
	})
	return v
}

// rawQuery holds query parameters in validatable form. Zero ints mean the
// parameter was absent.
type rawQuery struct {
	From  string   `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To    string   `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Types []string `validate:"omitempty,dive,eventtype"`
	Limit int      `validate:"min=0,max=1000"`
	Days  int      `validate:"min=0,max=365"`
}

// timelineParams are the decoded filters for timeline endpoints
type timelineParams struct {
	from  time.Time
	to    time.Time
	types []audit.EventType
	limit int
}

// parseTimelineQuery decodes from/to/types/limit for timeline endpoints
func parseTimelineQuery(r *http.Request) (timelineParams, error) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		return timelineParams{}, err
	}

	raw := rawQuery{
		From:  q.Get("from"),
		To:    q.Get("to"),
		Limit: limit,
	}
	if typesRaw := q.Get("types"); typesRaw != "" {
		raw.Types = strings.Split(typesRaw, ",")
	}

	if err := validate.Struct(raw); err != nil {
		return timelineParams{}, formatValidationError(err)
	}

	var params timelineParams
	params.limit = limit
	if raw.From != "" {
		params.from, _ = time.Parse(time.RFC3339, raw.From)
	}
	if raw.To != "" {
		params.to, _ = time.Parse(time.RFC3339, raw.To)
	}
	for _, t := range raw.Types {
		et, _ := audit.ParseEventType(t)
		params.types = append(params.types, et)
	}

	return params, nil
}

// parseDaysParam decodes the days window parameter, defaulting when absent
func parseDaysParam(r *http.Request, def int) (int, error) {
	days, err := intParam(r.URL.Query().Get("days"), "days")
	if err != nil {
		return 0, err
	}
	if days == 0 {
		return def, nil
	}

	if err := validate.Struct(rawQuery{Days: days}); err != nil {
		return 0, formatValidationError(err)
	}
	return days, nil
}

// parseLimitParam decodes the limit parameter, defaulting when absent
func parseLimitParam(r *http.Request, def int) (int, error) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		return def, nil
	}

	if err := validate.Struct(rawQuery{Limit: limit}); err != nil {
		return 0, formatValidationError(err)
	}
	return limit, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domainErrors.NewValidationError("INVALID_PARAMETER",
			fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

// formatValidationError converts validator errors into a single AppError
// carrying per-field messages in its details
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return domainErrors.NewValidationError("VALIDATION_ERROR", err.Error())
	}

	fields := make(map[string]interface{}, len(validationErrors))
	for _, fe := range validationErrors {
		var msg string
		switch fe.Tag() {
		case "datetime":
			msg = "must be an RFC 3339 timestamp"
		case "min":
			msg = fmt.Sprintf("minimum value is %s", fe.Param())
		case "max":
			msg = fmt.Sprintf("maximum value is %s", fe.Param())
		case "eventtype":
			msg = fmt.Sprintf("unknown event type %q", fe.Value())
		default:
			msg = fmt.Sprintf("failed %s validation", fe.Tag())
		}
		fields[strings.ToLower(fe.Field())] = msg
	}

	return domainErrors.NewValidationError("VALIDATION_ERROR", "invalid query parameters").
		WithDetails(fields)
}
