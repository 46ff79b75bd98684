package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEncoding(t *testing.T) {
	t.Run("done carries zero failures explicitly", func(t *testing.T) {
		data, err := Done(0).Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"done","failures":0}`, string(data))
	})

	t.Run("done with failures", func(t *testing.T) {
		data, err := Done(3).Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"done","failures":3}`, string(data))
	})

	t.Run("start", func(t *testing.T) {
		data, err := Start("grep creation", true).Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"start","description":"grep creation","invert":true}`, string(data))
	})

	t.Run("start carries invert false explicitly", func(t *testing.T) {
		data, err := Start("all suites", false).Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"start","description":"all suites","invert":false}`, string(data))
	})

	t.Run("log line keeps embedded newlines", func(t *testing.T) {
		data, err := LogLine("stdout", "a\nb").Encode()
		require.NoError(t, err)

		var got Event
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "a\nb", got.Line)
	})

	t.Run("shutdown", func(t *testing.T) {
		data, err := Shutdown("daemon stopping").Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"shutdown","reason":"daemon stopping"}`, string(data))
	})

	t.Run("heartbeat is bare", func(t *testing.T) {
		data, err := Heartbeat().Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"heartbeat"}`, string(data))
	})
}
