// Package jsonx contains small helpers for inspecting raw JSON payloads.
package jsonx

import (
	"bytes"
	"encoding/json"
)

// IsObject returns true if the raw message contains a JSON object.
func IsObject(raw *json.RawMessage) bool {
	if raw == nil {
		return false
	}
	data := bytes.TrimSpace(*raw)
	return len(data) > 0 && data[0] == '{'
}

// IsArray returns true if the raw message contains a JSON array.
func IsArray(raw *json.RawMessage) bool {
	if raw == nil {
		return false
	}
	data := bytes.TrimSpace(*raw)
	return len(data) > 0 && data[0] == '['
}

// IsNull returns true if the raw message contains the JSON literal null.
func IsNull(raw *json.RawMessage) bool {
	if raw == nil {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(*raw), []byte("null"))
}
