package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostHooks_EmptyCommandsAreNoops(t *testing.T) {
	h := &HostHooks{}
	assert.NoError(t, h.SetNKRO(context.Background(), true))
	assert.NoError(t, h.RebootToBootloader(context.Background()))
}

func TestHostHooks_NKROArgument(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nkro")
	// The state argument is appended after "sh", so the script sees it as $1.
	h := &HostHooks{NKROCommand: []string{"sh", "-c", `printf %s "$1" > "` + out + `"`, "sh"}}
	require.NoError(t, h.SetNKRO(context.Background(), true))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "on", string(b))

	require.NoError(t, h.SetNKRO(context.Background(), false))
	b, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "off", string(b))
}

func TestHostHooks_FailureIncludesOutput(t *testing.T) {
	h := &HostHooks{BootloaderCommand: []string{"sh", "-c", "echo no device >&2; exit 3"}}
	err := h.RebootToBootloader(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device")
}
