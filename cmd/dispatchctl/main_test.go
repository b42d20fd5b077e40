package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePayload(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{"id":1}`), parsePayload(`{"id":1}`, false))
	assert.Equal(t, "hello", parsePayload("hello", false))
	assert.Equal(t, []byte(`{"id":1}`), parsePayload(`{"id":1}`, true))
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()

	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "listen")
	assert.Contains(t, names, "send")

	listen, _, err := cmd.Find([]string{"listen"})
	assert.NoError(t, err)
	assert.NotNil(t, listen.Flags().Lookup("health-addr"))
	assert.NotNil(t, listen.Flags().Lookup("handler-timeout"))
	assert.NotNil(t, listen.Flags().Lookup("action"))

	send, _, err := cmd.Find([]string{"send"})
	assert.NoError(t, err)
	assert.NotNil(t, send.Flags().Lookup("to"))
}
