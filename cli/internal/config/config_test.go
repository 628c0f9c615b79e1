package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(Options{}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultDomain, cfg.Domain)
	assert.Equal(t, "wss://localhost:8080/ws", cfg.WebSocketURL)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, DefaultAnswerTimeout, cfg.AnswerTimeout)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
}

func TestLoad_Priority(t *testing.T) {
	e := env(map[string]string{
		"DOMAIN":                  "call.example:443",
		"WARPCALL_CODEC":          "msgpack",
		"WARPCALL_NAME":           " ada ",
		"TURN_SERVER":             "turn.example",
		"WARPCALL_INSECURE":       "true",
		"WARPCALL_ANSWER_TIMEOUT": "5s",
	})

	cfg, err := load(Options{}, e)
	require.NoError(t, err)
	assert.Equal(t, "ws://call.example:443/ws?codec=msgpack", cfg.WebSocketURL)
	assert.Equal(t, "ada", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.AnswerTimeout)
	assert.Len(t, cfg.GetTURNServers(), 3)

	cfg, err = load(Options{Domain: "other.example", Codec: "json", Name: "bob", AnswerTimeout: time.Second}, e)
	require.NoError(t, err)
	assert.Equal(t, "ws://other.example/ws", cfg.WebSocketURL)
	assert.Equal(t, "bob", cfg.Name)
	assert.Equal(t, time.Second, cfg.AnswerTimeout)
	assert.Equal(t, "http://other.example/r/ABCD1234", cfg.GetRoomLink("ABCD1234"))
}

func TestLoad_Invalid(t *testing.T) {
	_, err := load(Options{Codec: "xml"}, env(nil))
	assert.Error(t, err)

	_, err = load(Options{ForceRelay: true}, env(nil))
	assert.ErrorContains(t, err, "TURN")

	_, err = load(Options{}, env(map[string]string{"WARPCALL_ANSWER_TIMEOUT": "soon"}))
	assert.ErrorContains(t, err, "WARPCALL_ANSWER_TIMEOUT")
}

func TestParseRoom(t *testing.T) {
	for _, in := range []string{"ABCD1234", "abcd1234", " abcd1234 ", "https://call.example/r/abcd1234", "http://localhost:8080/r/ABCD1234/"} {
		id, err := ParseRoom(in)
		require.NoError(t, err, in)
		assert.Equal(t, "ABCD1234", id, in)
	}

	for _, in := range []string{"", "ABC", "ABCD-123", "https://call.example/r/"} {
		_, err := ParseRoom(in)
		assert.Error(t, err, in)
	}
}
