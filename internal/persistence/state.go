package persistence

import (
	"encoding/json"
	"fmt"

	"torrentd/internal/domain"
)

// LoadState reads state.json, returning defaults overlaid with whatever
// the file contained, plus the (hex, rpc_id) pairs to hand the Torrent
// Manager via recover_rpc_mappings. A missing file is not an error —
// defaults apply.
func LoadState(layout Layout) (domain.SessionState, map[string]domain.RpcId, error) {
	state := domain.DefaultSessionState()

	raw, err := ReadFile(layout.StateFile())
	if err != nil {
		return state, nil, fmt.Errorf("persistence: read state.json: %w", err)
	}
	if raw == nil {
		return state, nil, nil
	}

	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.DefaultSessionState(), nil, fmt.Errorf("persistence: parse state.json: %w", err)
	}

	pairs := state.RpcIDs
	return state, pairs, nil
}

// SaveState persists the session state document atomically. JSON is the
// stdlib choice here because state.json IS the wire format, defined
// field-by-field — there is no richer serialization concern to delegate to
// a third-party codec.
func SaveState(layout Layout, state domain.SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: encode state.json: %w", err)
	}
	return AtomicWriteFile(layout.StateFile(), data, 0644)
}

// SaveSessionParams writes the opaque library session-params blob (the
// ".session_state" artifact) on shutdown and periodically.
func SaveSessionParams(layout Layout, data []byte) error {
	return AtomicWriteFile(layout.SessionParamsFile(), data, 0644)
}

// LoadSessionParams reads the library session-params blob, returning nil
// if it has never been written.
func LoadSessionParams(layout Layout) ([]byte, error) {
	return ReadFile(layout.SessionParamsFile())
}
