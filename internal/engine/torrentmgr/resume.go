package torrentmgr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/anacrolix/torrent"

	"torrentd/internal/domain"
)

// resumeSaveInterval bounds how often a live torrent's resume blob is
// rewritten between the save synthesized on metadata_received and the
// forced save the Engine Loop performs at shutdown.
const resumeSaveInterval = 60 * time.Second

// encodeHaveBitfield renders a torrent's piece-completion state as a raw
// bitfield, one bit per piece, MSB-first within each byte.
func encodeHaveBitfield(t *torrent.Torrent) []byte {
	n := t.NumPieces()
	if n <= 0 {
		return nil
	}
	buf := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if t.PieceState(i).Complete {
			buf[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return buf
}

// resumeBlobJSON fills in AddedTime if unset and marshals the blob into
// the on-disk "resume blob" artifact.
func resumeBlobJSON(blob domain.ResumeBlob) ([]byte, error) {
	if blob.AddedTime == 0 {
		blob.AddedTime = time.Now().Unix()
	}
	return json.Marshal(blob)
}

// ResumeDataFor builds a torrent's resume blob from its live handle.
// anacrolix/torrent keeps the have-bitfield in memory only and has no
// library-native save_resume_data call, so this is the engine's
// substitute — shared by the live save-resume alert path in pollOne
// below and by the Engine Loop's forced shutdown save.
func ResumeDataFor(t *torrent.Torrent) ([]byte, error) {
	if t.Info() == nil {
		return nil, errors.New("torrentmgr: resume data requires metadata")
	}
	blob := domain.ResumeBlob{
		InfoHash:      t.InfoHash().HexString(),
		HaveBitfield:  base64.StdEncoding.EncodeToString(encodeHaveBitfield(t)),
		DisplayedName: t.Name(),
	}
	return resumeBlobJSON(blob)
}

// maybeSaveResumeData synthesizes the save_resume_data (or
// save_resume_data_failed) alert for t. force bypasses the interval gate,
// used right after metadata_received so a torrent's first resume blob
// lands as soon as it can. Interval-gated calls only run for torrents
// whose metadata is already known — polling a torrent with no metadata
// yet has nothing to save.
func (m *Manager) maybeSaveResumeData(id domain.RpcId, hash domain.InfoHash, t *torrent.Torrent, force bool) {
	if !force {
		if last, ok := m.resumeSavedAt[id]; ok && time.Since(last) < resumeSaveInterval {
			return
		}
	}
	data, err := ResumeDataFor(t)
	if err != nil {
		m.dispatch(SaveResumeDataFailedAlert{Hash: hash, Err: err})
		return
	}
	m.resumeSavedAt[id] = time.Now()
	m.dispatch(SaveResumeDataAlert{Hash: hash, Data: data})
}
