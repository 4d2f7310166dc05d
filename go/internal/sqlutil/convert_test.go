package sqlutil

import (
	"encoding/json"
	"testing"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
)

func TestNullRawMessage(t *testing.T) {
	assert.False(t, ToNullRawMessage(nil).Valid)
	assert.False(t, ToNullRawMessage(json.RawMessage("null")).Valid)

	v := ToNullRawMessage(json.RawMessage(`{"a":1}`))
	assert.True(t, v.Valid)
	assert.JSONEq(t, `{"a":1}`, string(FromNullRawMessage(v)))

	assert.Nil(t, FromNullRawMessage(pqtype.NullRawMessage{}))
}
