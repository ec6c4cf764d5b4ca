package web

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// QueryInt parses an optional integer query parameter. The boolean reports presence.
func QueryInt(r *http.Request, key string) (int, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, true, nil
}

// QueryFloat parses an optional finite float query parameter.
func QueryFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%s must be a number, got %q", key, raw)
	}
	return &v, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false, got %q", key, raw)
	}
	return &v, nil
}

// QueryString returns a trimmed query parameter.
func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
