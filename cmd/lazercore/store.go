package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoSettings is returned by a Store that has never been written.
var ErrNoSettings = errors.New("no persisted settings")

// Store persists the settings blob. Implementations treat the blob as opaque
// bytes; validation happens in DecodeSettings.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// loadSettings reads the blob and falls back to defaults when it is missing or
// corrupt. Valid is false in that case so the reducer rewrites the store.
func loadSettings(ctx context.Context, store Store, defaults Settings, logger *slog.Logger) (SettingsLoaded, error) {
	blob, err := store.Load(ctx)
	if errors.Is(err, ErrNoSettings) {
		logger.Info("no persisted settings, using defaults")
		return SettingsLoaded{Settings: defaults, Valid: false}, nil
	}
	if err != nil {
		return SettingsLoaded{}, fmt.Errorf("load settings: %w", err)
	}

	st, ok := DecodeSettings(blob, defaults)
	if !ok {
		logger.Warn("persisted settings invalid, using defaults", "bytes", len(blob))
	}
	return SettingsLoaded{Settings: st, Valid: ok}, nil
}
