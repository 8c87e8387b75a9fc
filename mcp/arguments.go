package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-crmbridge/core"
)

// Arguments are the decoded tools/call arguments. Lookups take the
// canonical name first, then accepted aliases.
type Arguments map[string]any

func (a Arguments) lookup(keys ...string) (any, string, bool) {
	for _, key := range keys {
		if value, ok := a[key]; ok && value != nil {
			return value, key, true
		}
	}
	return nil, "", false
}

func (a Arguments) String(keys ...string) (string, error) {
	value, key, ok := a.lookup(keys...)
	if !ok {
		return "", nil
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed), nil
	case json.Number:
		return typed.String(), nil
	default:
		return "", argumentError(key, "must be a string")
	}
}

// IntPtr returns nil when none of keys is present.
func (a Arguments) IntPtr(keys ...string) (*int, error) {
	value, key, ok := a.lookup(keys...)
	if !ok {
		return nil, nil
	}
	var n int
	switch typed := value.(type) {
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return nil, argumentError(key, "must be an integer")
		}
		n = int(parsed)
	case float64:
		if typed != math.Trunc(typed) {
			return nil, argumentError(key, "must be an integer")
		}
		n = int(typed)
	case int:
		n = typed
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return nil, argumentError(key, "must be an integer")
		}
		n = parsed
	default:
		return nil, argumentError(key, "must be an integer")
	}
	return &n, nil
}

func (a Arguments) Int(keys ...string) (int, error) {
	n, err := a.IntPtr(keys...)
	if err != nil || n == nil {
		return 0, err
	}
	return *n, nil
}

// Object returns nil when none of keys is present.
func (a Arguments) Object(keys ...string) (map[string]any, error) {
	value, key, ok := a.lookup(keys...)
	if !ok {
		return nil, nil
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, argumentError(key, "must be an object")
	}
	return object, nil
}

func (a Arguments) Objects(keys ...string) ([]map[string]any, error) {
	value, key, ok := a.lookup(keys...)
	if !ok {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, argumentError(key, "must be an array of objects")
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		object, ok := item.(map[string]any)
		if !ok {
			return nil, argumentError(key, "must be an array of objects")
		}
		out = append(out, object)
	}
	return out, nil
}

func argumentError(key, message string) error {
	return core.NewValidationError(fmt.Sprintf("%s %s", key, message), http.StatusBadRequest)
}
