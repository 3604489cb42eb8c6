package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFailoverEvent(t *testing.T) {
	a := NewFailoverEvent(EventPeerDown, "failed", "i-1", "i-2")
	b := NewFailoverEvent(EventPeerDown, "failed", "i-1", "i-2")

	assert.Len(t, a.ID, 36)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"peer-down"`)
	assert.NotContains(t, string(data), "failed_tables")
}
