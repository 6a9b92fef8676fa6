// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// strict JSON body decoding and the query parameters of the list and stats
// endpoints.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spendly/internal/core"
	"spendly/internal/services"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON value from the body into dst. Unknown
// fields, trailing data and oversized bodies are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return core.NewValidationError("body", "request body must contain a single JSON object")
	}
	return nil
}

// bodyError turns a decoder failure into a client-facing validation error.
func bodyError(err error) error {
	var (
		ve        *core.ValidationError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		return ve
	case errors.Is(err, io.EOF):
		return core.NewValidationError("body", "request body is empty")
	case errors.As(err, &maxErr):
		return core.NewValidationError("body", fmt.Sprintf("request body must not exceed %d bytes", maxErr.Limit))
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return core.NewValidationError("body", "request body is not valid JSON")
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return core.NewValidationError(field, fmt.Sprintf("%s must be a %s", field, typeErr.Type))
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		name := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return core.NewValidationError(name, fmt.Sprintf("unknown field %q", name))
	default:
		return core.NewValidationError("body", "invalid request body")
	}
}

// ParseMonthQuery reads the optional month and year parameters. Missing
// values stay zero so the service picks the current month.
func ParseMonthQuery(query url.Values) (services.MonthQuery, error) {
	month, err := core.ParseMonth(query.Get("month"), 0)
	if err != nil {
		return services.MonthQuery{}, err
	}
	year, err := core.ParseYear(query.Get("year"), 0)
	if err != nil {
		return services.MonthQuery{}, err
	}
	return services.MonthQuery{Year: year, Month: month}, nil
}

// ParseDayQuery reads the optional date parameter. Nil means today.
func ParseDayQuery(query url.Values, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(query.Get("date"))
	if raw == "" {
		return nil, nil
	}
	t, err := core.ParseDate("date", raw, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseListQuery reads the filter and pagination parameters of the record
// list. endDate is inclusive: a bare date covers that whole day.
func ParseListQuery(query url.Values, loc *time.Location) (services.ListQuery, error) {
	var q services.ListQuery
	var err error

	if q.Page, err = parseIntParam(query, "page", 1, 1, services.MaxPage); err != nil {
		return q, err
	}
	if q.Limit, err = parseIntParam(query, "limit", services.DefaultPageSize, 1, services.MaxPageSize); err != nil {
		return q, err
	}

	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		c, err := core.ParseCategory(raw)
		if err != nil {
			return q, err
		}
		q.Category = &c
	}
	if raw := strings.TrimSpace(query.Get("startDate")); raw != "" {
		from, err := core.ParseDate("startDate", raw, loc)
		if err != nil {
			return q, err
		}
		q.From = &from
	}
	if raw := strings.TrimSpace(query.Get("endDate")); raw != "" {
		to, err := core.ParseEndDate("endDate", raw, loc)
		if err != nil {
			return q, err
		}
		q.To = &to
	}
	return q, nil
}

// parseIntParam parses an optional integer within [min, max].
func parseIntParam(query url.Values, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, core.NewValidationError(key, fmt.Sprintf("%s must be an integer between %d and %d", key, min, max))
	}
	return v, nil
}
