package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_EmptyPresenceKeepsUsers(t *testing.T) {
	ev := Event{Seq: 7, Type: EventPresence, Online: []PresenceEntry{}, At: time.Unix(0, 0).UTC()}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "users")
	assert.JSONEq(t, `[]`, string(raw["users"]))
}
