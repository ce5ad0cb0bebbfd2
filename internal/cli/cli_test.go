package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nofomo/internal/app"
	"nofomo/internal/engine"
)

func TestCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(func() { appHandle = nil })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "version: dev")

	out.Reset()
	rootCmd.SetArgs([]string{"evaluate", "--symbol", "BTCUSDT", "--direction", "LONG", "--change24h", "22", "--fear-greed", "95"})
	require.NoError(t, rootCmd.Execute())

	var result app.EvaluateResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, engine.ActionBlock, result.Assessment.Decision.Action)
	assert.Equal(t, 68, result.Assessment.Decision.ImpulseScore)

	rootCmd.SetArgs([]string{"show", "--limit", "0"})
	assert.Error(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"replay", "--limit", "501"})
	assert.Error(t, rootCmd.Execute())
}
