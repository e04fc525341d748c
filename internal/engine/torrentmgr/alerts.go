package torrentmgr

import "torrentd/internal/domain"

// Alert is the tagged-variant alert type used in place of a
// callback-struct-with-many-optional-pointers: each concrete alert type
// below satisfies this marker interface, and Dispatch switches on the
// concrete type the way a sum-type match would in a language that has one.
type Alert interface {
	isAlert()
}

type TorrentFinishedAlert struct {
	Hash domain.InfoHash
}

type SaveResumeDataAlert struct {
	Hash   domain.InfoHash // may be zero if unresolved
	Handle bool            // true if only the handle (no hash) was valid
	Data   []byte
}

type SaveResumeDataFailedAlert struct {
	Hash   domain.InfoHash
	Handle bool
	Err    error
}

type MetadataReceivedAlert struct {
	Hash domain.InfoHash
}

type MetadataFailedAlert struct {
	Hash domain.InfoHash
	Err  error
}

type AddTorrentAlert struct {
	Hash domain.InfoHash
	Err  error
}

type StateUpdateAlert struct {
	Hash domain.InfoHash
}

type ListenSucceededAlert struct{ Addr string }
type ListenFailedAlert struct {
	Addr string
	Err  error
}

type FileErrorAlert struct {
	Hash domain.InfoHash
	Err  error
}

type TrackerErrorAlert struct {
	Hash domain.InfoHash
	URL  string
	Err  error
}

type TorrentDeleteFailedAlert struct {
	Hash domain.InfoHash
	Err  error
}

type PortmapErrorAlert struct{ Err error }

type StorageMovedAlert struct {
	Hash domain.InfoHash
	Path string
}

type StorageMovedFailedAlert struct {
	Hash domain.InfoHash
	Err  error
}

type FastresumeRejectedAlert struct {
	Hash domain.InfoHash
	Err  error
}

// alertKind returns a short stable label for a, used as the metrics
// cardinality key instead of a full %T type name.
func alertKind(a Alert) string {
	switch a.(type) {
	case TorrentFinishedAlert:
		return "torrent_finished"
	case SaveResumeDataAlert:
		return "save_resume_data"
	case SaveResumeDataFailedAlert:
		return "save_resume_data_failed"
	case MetadataReceivedAlert:
		return "metadata_received"
	case MetadataFailedAlert:
		return "metadata_failed"
	case AddTorrentAlert:
		return "add_torrent"
	case StateUpdateAlert:
		return "state_update"
	case ListenSucceededAlert:
		return "listen_succeeded"
	case ListenFailedAlert:
		return "listen_failed"
	case FileErrorAlert:
		return "file_error"
	case TrackerErrorAlert:
		return "tracker_error"
	case TorrentDeleteFailedAlert:
		return "torrent_delete_failed"
	case PortmapErrorAlert:
		return "portmap_error"
	case StorageMovedAlert:
		return "storage_moved"
	case StorageMovedFailedAlert:
		return "storage_moved_failed"
	case FastresumeRejectedAlert:
		return "fastresume_rejected"
	default:
		return "unknown"
	}
}

func (TorrentFinishedAlert) isAlert()      {}
func (SaveResumeDataAlert) isAlert()       {}
func (SaveResumeDataFailedAlert) isAlert() {}
func (MetadataReceivedAlert) isAlert()     {}
func (MetadataFailedAlert) isAlert()       {}
func (AddTorrentAlert) isAlert()           {}
func (StateUpdateAlert) isAlert()          {}
func (ListenSucceededAlert) isAlert()      {}
func (ListenFailedAlert) isAlert()         {}
func (FileErrorAlert) isAlert()            {}
func (TrackerErrorAlert) isAlert()         {}
func (TorrentDeleteFailedAlert) isAlert()  {}
func (PortmapErrorAlert) isAlert()         {}
func (StorageMovedAlert) isAlert()         {}
func (StorageMovedFailedAlert) isAlert()   {}
func (FastresumeRejectedAlert) isAlert()   {}

// Callbacks holds the optional capability slots the alert taxonomy
// dispatches to. Every field may be left nil; a nil callback means the
// matching alert is dropped silently, except where the fallback chain
// below says otherwise.
type Callbacks struct {
	OnTorrentFinished      func(hash domain.InfoHash)
	OnResumeData           func(hash domain.InfoHash, data []byte)
	OnResumeHashCompleted  func(hash domain.InfoHash)
	ExtendResumeDeadline   func()
	OnMetadataPersisted    func(hash domain.InfoHash, path string, n int)
	OnAddTorrent           func(hash domain.InfoHash, err error)
	OnMetadataFailed       func(hash domain.InfoHash, err error)
	OnStateUpdate          func(hash domain.InfoHash)
	OnListenSucceeded      func(addr string)
	OnListenFailed         func(addr string, err error)
	OnFileError            func(hash domain.InfoHash, err error)
	OnTrackerError         func(hash domain.InfoHash, url string, err error)
	OnTorrentDeleteFailed  func(hash domain.InfoHash, err error)
	OnPortmapError         func(err error)
	OnStorageMoved         func(hash domain.InfoHash, path string)
	OnStorageMovedFailed   func(hash domain.InfoHash, err error)
	OnFastresumeRejected   func(hash domain.InfoHash, err error)
}

// Dispatch routes a single alert to its registered callback, including
// the save_resume_data fallback chain. Dispatch itself does not recover a
// panicking callback; Manager.dispatch, through which the manager sends
// every alert, recovers and logs it.
//
// MetadataReceivedAlert carries no case here: the manager calls
// OnMetadataPersisted directly once it has written the metadata file,
// since that callback needs the path and byte count the alert itself
// doesn't carry.
func (c Callbacks) Dispatch(a Alert) {
	switch v := a.(type) {
	case TorrentFinishedAlert:
		if c.OnTorrentFinished != nil {
			c.OnTorrentFinished(v.Hash)
		}

	case SaveResumeDataAlert:
		switch {
		case !v.Hash.IsZero():
			if c.OnResumeData != nil {
				c.OnResumeData(v.Hash, v.Data)
			}
			if c.OnResumeHashCompleted != nil {
				c.OnResumeHashCompleted(v.Hash)
			}
		case v.Handle:
			if c.OnResumeHashCompleted != nil {
				c.OnResumeHashCompleted(v.Hash)
			}
		default:
			if c.ExtendResumeDeadline != nil {
				c.ExtendResumeDeadline()
			}
		}

	case SaveResumeDataFailedAlert:
		switch {
		case !v.Hash.IsZero():
			if c.OnResumeHashCompleted != nil {
				c.OnResumeHashCompleted(v.Hash)
			}
		case v.Handle:
			if c.OnResumeHashCompleted != nil {
				c.OnResumeHashCompleted(v.Hash)
			}
		default:
			if c.ExtendResumeDeadline != nil {
				c.ExtendResumeDeadline()
			}
		}

	case MetadataFailedAlert:
		if c.OnMetadataFailed != nil {
			c.OnMetadataFailed(v.Hash, v.Err)
		}

	case AddTorrentAlert:
		if c.OnAddTorrent != nil {
			c.OnAddTorrent(v.Hash, v.Err)
		}

	case StateUpdateAlert:
		if c.OnStateUpdate != nil {
			c.OnStateUpdate(v.Hash)
		}

	case ListenSucceededAlert:
		if c.OnListenSucceeded != nil {
			c.OnListenSucceeded(v.Addr)
		}

	case ListenFailedAlert:
		if c.OnListenFailed != nil {
			c.OnListenFailed(v.Addr, v.Err)
		}

	case FileErrorAlert:
		if c.OnFileError != nil {
			c.OnFileError(v.Hash, v.Err)
		}

	case TrackerErrorAlert:
		if c.OnTrackerError != nil {
			c.OnTrackerError(v.Hash, v.URL, v.Err)
		}

	case TorrentDeleteFailedAlert:
		if c.OnTorrentDeleteFailed != nil {
			c.OnTorrentDeleteFailed(v.Hash, v.Err)
		}

	case PortmapErrorAlert:
		if c.OnPortmapError != nil {
			c.OnPortmapError(v.Err)
		}

	case StorageMovedAlert:
		if c.OnStorageMoved != nil {
			c.OnStorageMoved(v.Hash, v.Path)
		}

	case StorageMovedFailedAlert:
		if c.OnStorageMovedFailed != nil {
			c.OnStorageMovedFailed(v.Hash, v.Err)
		}

	case FastresumeRejectedAlert:
		if c.OnFastresumeRejected != nil {
			c.OnFastresumeRejected(v.Hash, v.Err)
		}
	}
}
