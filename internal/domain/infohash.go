// Package domain holds the engine's core value types: info-hashes, rpc ids,
// snapshots, persisted settings, and the task closures the command queue
// carries. Nothing here touches the network or the filesystem.
package domain

import "encoding/hex"

// InfoHash is a torrent's metadata identifier: 20 bytes for SHA-1 (BEP 3),
// 32 bytes for SHA-256 (BEP 52). It is stored as raw bytes and rendered to
// lowercase hex only at persistence/RPC boundaries.
type InfoHash []byte

// Hex renders the info-hash as lowercase hex, the form used in state.json
// and the resume/metadata file names.
func (h InfoHash) Hex() string {
	return hex.EncodeToString(h)
}

// IsZero reports whether every byte of the hash is zero. A zero hash never
// gets an RpcId — only non-zero hashes may be mapped to RPC ids.
func (h InfoHash) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

// InfoHashFromHex parses a lowercase (or mixed-case) hex string produced by
// Hex back into raw bytes, as used when loading rpc_ids from state.json.
func InfoHashFromHex(s string) (InfoHash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return InfoHash(b), nil
}
