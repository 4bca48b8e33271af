package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortSocketPath keeps the path under the sun_path limit, which t.TempDir
// can exceed.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "lz")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func startIPC(t *testing.T, events chan Event) string {
	t.Helper()
	path := shortSocketPath(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runIPCServer(ctx, path, events, quietLogger()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Errorf("IPC server did not stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, "IPC socket not created")
	return path
}

func TestIPC_SendEvent(t *testing.T) {
	events := make(chan Event, 4)
	path := startIPC(t, events)

	require.NoError(t, SendIPCEvent(path, InvokeOp{Op: "sentence_case"}))
	select {
	case ev := <-events:
		assert.Equal(t, InvokeOp{Op: "sentence_case"}, ev)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o660), fi.Mode().Perm())
}

func TestIPC_ErrorsPerLine(t *testing.T) {
	events := make(chan Event, 1)
	path := startIPC(t, events)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("garbage\n" +
		`{"type":"encoder_turn","data":{"steps":1}}` + "\n" +
		`{"type":"encoder_turn","data":{"steps":2}}` + "\n"))
	require.NoError(t, err)

	sc := bufio.NewScanner(conn)
	var statuses []IPCResponse
	for i := 0; i < 3 && sc.Scan(); i++ {
		var resp IPCResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		statuses = append(statuses, resp)
	}
	require.Len(t, statuses, 3)
	assert.Equal(t, "error", statuses[0].Status)
	assert.Equal(t, "ok", statuses[1].Status)
	// Queue of one is now full.
	assert.Equal(t, IPCResponse{Status: "error", Error: "event queue full"}, statuses[2])
}

func TestSendIPCEvent_NoDaemon(t *testing.T) {
	err := SendIPCEvent(shortSocketPath(t), InvokeOp{Op: "winlock"})
	assert.Error(t, err)
}
