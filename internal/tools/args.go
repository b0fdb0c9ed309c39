package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dotcommander/lmagent/internal/errs"
)

// Args are decoded tool arguments.
type Args map[string]any

// String returns a required string argument.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", errs.Kind(errs.ErrValidation, fmt.Errorf("missing required argument %q", key))
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	default:
		return "", errs.Kind(errs.ErrValidation, fmt.Errorf("argument %q must be a string, got %T", key, v))
	}
}

// Int returns a required integer argument. Whole floats, JSON numbers and
// numeric strings are accepted.
func (a Args) Int(key string) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, errs.Kind(errs.ErrValidation, fmt.Errorf("missing required argument %q", key))
	}
	bad := errs.Kind(errs.ErrValidation, fmt.Errorf("argument %q must be an integer, got %v", key, v))
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, bad
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, bad
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, bad
		}
		return i, nil
	default:
		return 0, bad
	}
}
