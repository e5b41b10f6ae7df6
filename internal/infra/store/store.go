// Package store provides persistence backends for the player state blob.
package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/musify/internal/app/playback"
)

// StateKey is the fixed key the player state is stored under.
const StateKey = "playerState"

// ErrNotFound is returned by Load when nothing has been stored yet.
var ErrNotFound = playback.ErrNoSavedState

// Store persists a single PlayerState.
type Store interface {
	Load(ctx context.Context) (playback.PlayerState, error)
	Save(ctx context.Context, state playback.PlayerState) error
	Close() error
}

func encodeState(state playback.PlayerState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode player state")
	}
	return data, nil
}

func decodeState(data []byte) (playback.PlayerState, error) {
	var state playback.PlayerState
	if err := json.Unmarshal(data, &state); err != nil {
		return playback.PlayerState{}, errors.Wrap(err, "failed to decode player state")
	}
	return state, nil
}

// decodeSettings fills out from a backend settings map, applying defaults and validation.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
