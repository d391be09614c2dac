package model

import (
	"encoding/json"
	"strings"
)

// EnvelopeSchema wraps a request's structured-output schema so one
// completion carries both the user-facing reply and the extracted data. The
// adapters send this as the response contract and split it back apart with
// ParseEnvelope.
func EnvelopeSchema(p Parameters) map[string]any {
	name := p.SchemaName
	if name == "" {
		name = "data"
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "the assistant's conversational reply to the user",
			},
			name: p.JSONSchema,
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}

// ParseEnvelope splits an envelope completion into reply text and structured
// data. Content that is not a JSON envelope is returned verbatim as the
// message with nil structured data.
func ParseEnvelope(content string, p Parameters) (string, map[string]any) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return content, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return content, nil
	}
	name := p.SchemaName
	if name == "" {
		name = "data"
	}
	msg, _ := payload["message"].(string)
	structured, _ := payload[name].(map[string]any)
	if msg == "" && structured == nil {
		return content, nil
	}
	return msg, structured
}
