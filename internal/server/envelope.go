package server

import (
	"encoding/json"
	"strings"
)

// responseEnvelope is the structured document newer CLI versions emit on
// stdout when asked for JSON output. Both fields are optional; older versions
// print plain text instead.
type responseEnvelope struct {
	Result    *string `json:"result"`
	SessionID string  `json:"session_id"`
}

// parseEnvelope attempts to decode the full output buffer as one envelope.
// A failed decode is not an error: the caller falls back to the raw text.
func parseEnvelope(raw string) (responseEnvelope, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return responseEnvelope{}, false
	}
	var env responseEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return responseEnvelope{}, false
	}
	return env, true
}
