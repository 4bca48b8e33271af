package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract checks the behaviour every Store backend must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoSettings)

	first := Settings{NightMode: true, NightHSV: HSV{H: 1, S: 2, V: 3}}.Encode()
	require.NoError(t, store.Save(ctx, first))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := DefaultSettings().Encode()
	require.NoError(t, store.Save(ctx, second))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got, "save overwrites")
}

func TestFileStore_Contract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.bin")
	runStoreContract(t, NewFileStore(path))
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "settings.bin"))
	require.NoError(t, s.Save(context.Background(), []byte("blob")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"settings.bin", "settings.bin.lock"}, names)
}

func TestRedisStore_Contract(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "")
	defer store.Close()

	runStoreContract(t, store)
	assert.True(t, mr.Exists(defaultRedisKey))
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	store := NewRedisStore(addr, "", 0, "custom:key")
	defer store.Close()

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSettings))
}

type memStore struct {
	mu      sync.Mutex
	blob    []byte
	loadErr error
	saveErr error
	saves   int

	// block, when set, holds every Save until it is closed.
	block chan struct{}
}

func (m *memStore) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.blob == nil {
		return nil, ErrNoSettings
	}
	return m.blob, nil
}

func (m *memStore) Save(_ context.Context, blob []byte) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.blob = append([]byte(nil), blob...)
	return nil
}

func (m *memStore) saved() ([]byte, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blob, m.saves
}

func TestLoadSettings(t *testing.T) {
	ctx := context.Background()
	defaults := DefaultSettings()
	logger := slog.Default()

	t.Run("missing", func(t *testing.T) {
		ev, err := loadSettings(ctx, &memStore{}, defaults, logger)
		require.NoError(t, err)
		assert.Equal(t, SettingsLoaded{Settings: defaults, Valid: false}, ev)
	})

	t.Run("valid", func(t *testing.T) {
		st := Settings{GameMode: true}
		ev, err := loadSettings(ctx, &memStore{blob: st.Encode()}, defaults, logger)
		require.NoError(t, err)
		assert.Equal(t, SettingsLoaded{Settings: st, Valid: true}, ev)
	})

	t.Run("corrupt", func(t *testing.T) {
		ev, err := loadSettings(ctx, &memStore{blob: []byte("garbage")}, defaults, logger)
		require.NoError(t, err)
		assert.Equal(t, SettingsLoaded{Settings: defaults, Valid: false}, ev)
	})

	t.Run("backend error", func(t *testing.T) {
		_, err := loadSettings(ctx, &memStore{loadErr: errors.New("boom")}, defaults, logger)
		assert.Error(t, err)
	})
}
