package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits page_size.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps the supported page_size to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page_size")
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// Params bundles the pagination values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values. Both snake_case and camelCase keys are accepted.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(firstValue(values, "page_size", "pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	if rawToken := strings.TrimSpace(firstValue(values, "page_token", "pageToken")); rawToken != "" {
		cursor, err := DecodeToken(rawToken)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = rawToken
		params.Cursor = cursor
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultPageSize, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}

func firstValue(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// Clamp normalises a page size coming from services or repositories.
func Clamp(pageSize int) int {
	switch {
	case pageSize <= 0:
		return DefaultPageSize
	case pageSize > DefaultMaxPageSize:
		return DefaultMaxPageSize
	default:
		return pageSize
	}
}
