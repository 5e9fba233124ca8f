package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchbook/pkg/errors"
)

func echoTool(name string) Tool {
	return New(name, "echoes the input", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
	}, func(_ context.Context, args map[string]interface{}) (string, error) {
		text, _ := StringArg(args, "text")
		return text, nil
	})
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("beta"))
	r.Register(echoTool("alpha"))

	assert.Equal(t, []string{"alpha", "beta"}, r.List())

	_, ok := r.Get("alpha")
	assert.True(t, ok)
	_, ok = r.Get("gamma")
	assert.False(t, ok)
}

func TestRegistry_DefinitionsSkipsUnknown(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("alpha"))

	defs := r.Definitions("alpha", "missing")
	require.Len(t, defs, 1)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "echoes the input", defs[0].Description)
}

func TestRegistry_ExecutorDispatches(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("alpha"))

	out, err := r.Executor()(context.Background(), "alpha", `{"text": "hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRegistry_ExecutorUnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Executor()(context.Background(), "missing", `{}`)
	require.ErrorIs(t, err, errors.ErrToolFailed)
}

func TestRegistry_ExecutorBadArguments(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool("alpha"))

	_, err := r.Executor()(context.Background(), "alpha", `not json`)
	require.ErrorIs(t, err, errors.ErrToolFailed)
}
