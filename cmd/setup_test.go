package cmd

import (
	"testing"

	"github.com/bnema/segbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupAnswers(t *testing.T) {
	path := resetCommandConfig(t)
	config.SetConfigPath(path)
	require.NoError(t, config.Init())

	answers := answersFromConfig(config.Get())
	assert.Equal(t, config.DefaultConfig.Display.ConnPath, answers.ConnPath)
	assert.Equal(t, 4, answers.Limit)
	assert.NotNil(t, newSetupForm(answers))

	answers.ConnPath = " /run/compositor.sock "
	answers.Name = "lab"
	answers.Limit = 2
	answers.GL = true
	answers.Backend = "log"
	answers.Monitor = true
	require.NoError(t, applySetup(answers))

	config.Set(nil)
	require.NoError(t, config.Init())
	c := config.Get()
	assert.Equal(t, "/run/compositor.sock", c.Display.ConnPath)
	assert.Equal(t, "lab", c.Display.Name)
	assert.Equal(t, 2, c.Display.Limit)
	assert.True(t, c.Display.GL)
	assert.Equal(t, "log", c.Input.Backend)
	assert.True(t, c.Monitor.Enabled)
}
