package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdPropagatesInitFailure(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, string) (*app, error) {
		return nil, errors.New("boom")
	}

	cmd := newRootCmd()
	cmd.SetArgs([]string{"harvest"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize services")
}

func TestResolveAppRequiresInitialization(t *testing.T) {
	_, err := resolveApp(context.Background())
	assert.Error(t, err)
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	assert.True(t, names["harvest"])
	assert.True(t, names["sitemap"])
	assert.True(t, names["serve"])
}
