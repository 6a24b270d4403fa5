package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8787":   "ws://localhost:8787",
		"https://hub.example.org": "wss://hub.example.org",
		"ws://localhost:8787/":    "ws://localhost:8787",
		"wss://hub.example.org":   "wss://hub.example.org",
		"localhost:8787":          "ws://localhost:8787",
		"":                        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, WebSocketURL(in), "input %q", in)
	}
}

func TestValidateTopic(t *testing.T) {
	got, err := ValidateTopic("  room1 ")
	require.NoError(t, err)
	assert.Equal(t, "room1", got)

	for _, bad := range []string{"", "a b", "a/b", `a\b`, "a..b"} {
		_, err := ValidateTopic(bad)
		assert.Error(t, err, "topic %q", bad)
	}
}

func TestRingOverwrite(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.Snapshot())
}

func TestRingPartial(t *testing.T) {
	r := NewRing[string](4)
	r.Push("a")
	r.Push("b")
	assert.Equal(t, []string{"a", "b"}, r.Snapshot())
}
