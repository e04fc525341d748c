package torrentmgr

import (
	"errors"
	"testing"

	"torrentd/internal/domain"
)

func TestAlertKindCoversEveryConcreteType(t *testing.T) {
	cases := []struct {
		alert Alert
		want  string
	}{
		{TorrentFinishedAlert{}, "torrent_finished"},
		{SaveResumeDataAlert{}, "save_resume_data"},
		{SaveResumeDataFailedAlert{}, "save_resume_data_failed"},
		{MetadataReceivedAlert{}, "metadata_received"},
		{MetadataFailedAlert{}, "metadata_failed"},
		{AddTorrentAlert{}, "add_torrent"},
		{StateUpdateAlert{}, "state_update"},
		{ListenSucceededAlert{}, "listen_succeeded"},
		{ListenFailedAlert{}, "listen_failed"},
		{FileErrorAlert{}, "file_error"},
		{TrackerErrorAlert{}, "tracker_error"},
		{TorrentDeleteFailedAlert{}, "torrent_delete_failed"},
		{PortmapErrorAlert{}, "portmap_error"},
		{StorageMovedAlert{}, "storage_moved"},
		{StorageMovedFailedAlert{}, "storage_moved_failed"},
		{FastresumeRejectedAlert{}, "fastresume_rejected"},
	}
	for _, c := range cases {
		if got := alertKind(c.alert); got != c.want {
			t.Errorf("alertKind(%T) = %q, want %q", c.alert, got, c.want)
		}
	}
}

func TestDispatchTorrentFinished(t *testing.T) {
	var got domain.InfoHash
	cb := Callbacks{OnTorrentFinished: func(hash domain.InfoHash) { got = hash }}
	hash, _ := domain.InfoHashFromHex("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	cb.Dispatch(TorrentFinishedAlert{Hash: hash})
	if got.Hex() != hash.Hex() {
		t.Fatalf("OnTorrentFinished got %v, want %v", got, hash)
	}
}

func TestDispatchNilCallbackIsSilentlyDropped(t *testing.T) {
	cb := Callbacks{}
	// Must not panic for any alert type when no callback is registered.
	for _, a := range []Alert{
		TorrentFinishedAlert{},
		SaveResumeDataAlert{},
		SaveResumeDataFailedAlert{},
		MetadataFailedAlert{},
		AddTorrentAlert{},
		StateUpdateAlert{},
		ListenSucceededAlert{},
		ListenFailedAlert{},
		FileErrorAlert{},
		TrackerErrorAlert{},
		TorrentDeleteFailedAlert{},
		PortmapErrorAlert{},
		StorageMovedAlert{},
		StorageMovedFailedAlert{},
		FastresumeRejectedAlert{},
	} {
		cb.Dispatch(a)
	}
}

func TestDispatchSaveResumeDataFallbackChain(t *testing.T) {
	hash, _ := domain.InfoHashFromHex("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	t.Run("with hash calls OnResumeData and OnResumeHashCompleted", func(t *testing.T) {
		var dataCalled, hashCompleted bool
		cb := Callbacks{
			OnResumeData:          func(domain.InfoHash, []byte) { dataCalled = true },
			OnResumeHashCompleted: func(domain.InfoHash) { hashCompleted = true },
			ExtendResumeDeadline:  func() { t.Fatal("should not extend deadline when hash is known") },
		}
		cb.Dispatch(SaveResumeDataAlert{Hash: hash, Data: []byte("x")})
		if !dataCalled || !hashCompleted {
			t.Fatalf("dataCalled=%v hashCompleted=%v, want both true", dataCalled, hashCompleted)
		}
	})

	t.Run("handle only calls OnResumeHashCompleted", func(t *testing.T) {
		var hashCompleted bool
		cb := Callbacks{
			OnResumeData:          func(domain.InfoHash, []byte) { t.Fatal("should not fire without a hash") },
			OnResumeHashCompleted: func(domain.InfoHash) { hashCompleted = true },
		}
		cb.Dispatch(SaveResumeDataAlert{Handle: true})
		if !hashCompleted {
			t.Fatal("expected OnResumeHashCompleted to fire for handle-only alert")
		}
	})

	t.Run("neither extends the deadline", func(t *testing.T) {
		var extended bool
		cb := Callbacks{ExtendResumeDeadline: func() { extended = true }}
		cb.Dispatch(SaveResumeDataAlert{})
		if !extended {
			t.Fatal("expected ExtendResumeDeadline to fire when neither hash nor handle is set")
		}
	})
}

func TestDispatchMetadataFailed(t *testing.T) {
	cause := errors.New("bad bencode")
	var gotErr error
	cb := Callbacks{OnMetadataFailed: func(hash domain.InfoHash, err error) { gotErr = err }}
	cb.Dispatch(MetadataFailedAlert{Err: cause})
	if gotErr != cause {
		t.Fatalf("OnMetadataFailed err = %v, want %v", gotErr, cause)
	}
}
