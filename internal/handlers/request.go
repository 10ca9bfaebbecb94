package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cx-tal-miterani/bus-booking-system/internal/apperror"
	"github.com/cx-tal-miterani/bus-booking-system/internal/models"
)

const maxBodySize = 1048576 // 1MB

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// readJSON decodes the request body into dst
func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
			return apperror.InvalidRequest("Malformed JSON body")
		case errors.As(err, &unmarshalTypeError):
			return apperror.InvalidRequest("Invalid value for field %q", unmarshalTypeError.Field)
		case errors.As(err, &maxBytesError):
			return apperror.InvalidRequest("Request body too large")
		case errors.Is(err, io.EOF):
			return apperror.InvalidRequest("Request body is empty")
		default:
			return apperror.InvalidRequest("Invalid request body")
		}
	}

	if decoder.More() {
		return apperror.InvalidRequest("Body must contain only a single JSON value")
	}
	return nil
}

// readAndValidate is readJSON followed by struct-tag validation
func readAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := readJSON(w, r, dst); err != nil {
		return err
	}
	return validateStruct(dst)
}

func validateStruct(dst interface{}) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperror.InvalidRequest("Invalid request")
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, validationMessage(fe))
	}
	return apperror.InvalidRequest("%s", strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		if fe.Param() == models.DateLayout {
			return field + " must be a date in YYYY-MM-DD format"
		}
		return field + " must be a time in HH:MM format"
	case "min":
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "gte":
		return field + " must be greater than or equal to " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// tripFilter reads source, destination and date from the query string
func tripFilter(r *http.Request) (models.TripFilter, error) {
	q := r.URL.Query()
	filter := models.TripFilter{
		Source:      strings.TrimSpace(q.Get("source")),
		Destination: strings.TrimSpace(q.Get("destination")),
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return filter, apperror.InvalidRequest("Invalid date %q: expected YYYY-MM-DD", raw)
		}
		filter.Date = &d
	}
	return filter, nil
}
