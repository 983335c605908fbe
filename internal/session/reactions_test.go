package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReactionsJSONNeverHoldsEmptySets(t *testing.T) {
	req := require.New(t)
	var r Reactions
	out, err := json.Marshal(r)
	req.NoError(err)
	req.JSONEq(`{}`, string(out))

	req.NoError(json.Unmarshal([]byte(`{"👍":["a","a"],"🎉":[]}`), &r))
	req.Equal([]string{"👍"}, r.Emojis())
	req.Equal([]string{"a"}, r.Users("👍"))
}

func TestReactionsToggleKeepsOrder(t *testing.T) {
	var r Reactions
	require.True(t, r.Toggle("👍", "a"))
	require.True(t, r.Toggle("👍", "b"))
	require.False(t, r.Toggle("👍", "a"))
	require.Equal(t, []string{"b"}, r.Users("👍"))
}
