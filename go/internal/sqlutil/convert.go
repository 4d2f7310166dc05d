package sqlutil

import (
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

// ToNullRawMessage converts an optional JSON document to a nullable jsonb value.
// Empty input and the JSON literal null are stored as SQL NULL.
func ToNullRawMessage(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return pqtype.NullRawMessage{Valid: false}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

// FromNullRawMessage converts a nullable jsonb value to a JSON document
func FromNullRawMessage(val pqtype.NullRawMessage) json.RawMessage {
	if !val.Valid {
		return nil
	}
	return val.RawMessage
}
