package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukerupert/listio/internal/model"
)

// ErrUnrecognizedEnvelope is returned for response bodies that are neither a
// bare payload nor one of the known wrappers.
var ErrUnrecognizedEnvelope = errors.New("api: unrecognized response envelope")

// Page is a decoded collection response.
type Page[T any] struct {
	Items []T
	Meta  *model.Meta
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Items json.RawMessage `json:"items"`
	Meta  *model.Meta     `json:"meta"`
}

// DecodeList accepts a bare array, {"data": [...]} or {"items": [...]}, each
// optionally carrying "meta".
func DecodeList[T any](raw json.RawMessage) (Page[T], error) {
	var page Page[T]

	switch kind(raw) {
	case '[':
		if err := json.Unmarshal(raw, &page.Items); err != nil {
			return page, fmt.Errorf("decode list: %w", err)
		}
		return page, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return page, fmt.Errorf("decode envelope: %w", err)
		}
		body := env.Data
		if kind(body) != '[' {
			body = env.Items
		}
		if kind(body) != '[' {
			return page, fmt.Errorf("%w: object without data or items array", ErrUnrecognizedEnvelope)
		}
		if err := json.Unmarshal(body, &page.Items); err != nil {
			return page, fmt.Errorf("decode list: %w", err)
		}
		page.Meta = env.Meta
		return page, nil
	default:
		return page, fmt.Errorf("%w: %s", ErrUnrecognizedEnvelope, describe(raw))
	}
}

// DecodeOne accepts a bare object or {"data": {...}}.
func DecodeOne[T any](raw json.RawMessage) (T, error) {
	var out T
	if kind(raw) != '{' {
		return out, fmt.Errorf("%w: %s", ErrUnrecognizedEnvelope, describe(raw))
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return out, fmt.Errorf("decode envelope: %w", err)
	}
	body := raw
	if kind(env.Data) == '{' {
		body = env.Data
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode object: %w", err)
	}
	return out, nil
}

// decodeOptional is DecodeOne for endpoints that may answer 204.
func decodeOptional[T any](raw json.RawMessage) (T, bool, error) {
	var zero T
	if kind(raw) == 0 {
		return zero, false, nil
	}
	v, err := DecodeOne[T](raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// kind returns the first significant byte of raw, or 0 for empty or null.
func kind(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0
	}
	return trimmed[0]
}

func describe(raw json.RawMessage) string {
	switch kind(raw) {
	case 0:
		return "empty body"
	case '"':
		return "string body"
	case '[':
		return "array body"
	case '{':
		return "object body"
	default:
		return "scalar body"
	}
}
