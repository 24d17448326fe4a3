package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "poll", "set-webhook", "set-commands"}, names)
}

func TestSetWebhook_RequiresURL(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"set-webhook"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "url" not set`)
}

func TestPoll_MemoryFlag(t *testing.T) {
	root := newRootCmd()
	poll, _, err := root.Find([]string{"poll"})
	require.NoError(t, err)

	flag := poll.Flags().Lookup("memory")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
