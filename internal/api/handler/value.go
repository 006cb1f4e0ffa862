package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	errMissingValue = errors.New("value is required")
	errNotNumeric   = errors.New("value must be a number or numeric string")
	errNotBoolean   = errors.New("value must be a boolean")
)

// parseNumber accepts a JSON number or a string holding one, since many
// microcontroller clients serialize every field as a string.
func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errMissingValue
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errNotNumeric
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, errNotNumeric
		}
		return f, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, errNotNumeric
	}
	return f, nil
}

// parseBool accepts true/false, the strings "true"/"false", or 0/1.
func parseBool(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, errMissingValue
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, nil
		}
		return false, errNotBoolean
	}

	f, err := parseNumber(raw)
	if err != nil || (f != 0 && f != 1) {
		return false, errNotBoolean
	}
	return f == 1, nil
}
