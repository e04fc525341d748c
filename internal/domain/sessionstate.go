package domain

// SessionState is the persisted settings document, the state.json schema.
// Every field is optional on load — LoadState starts from
// DefaultSessionState, so a missing key keeps its documented default.
// Fields with a non-zero default are always written, so an explicit
// false or zero survives a save/load round trip. JSON
// tags follow the schema's key names verbatim since this struct IS the
// on-disk format, not an internal convenience type.
type SessionState struct {
	ListenInterface string `json:"listen_interface"`
	RPCBind         string `json:"rpc_bind,omitempty"`
	DownloadPath    string `json:"download_path"`

	IncompleteDir        string `json:"incomplete_dir,omitempty"`
	IncompleteDirEnabled bool   `json:"incomplete_dir_enabled,omitempty"`

	WatchDir        string `json:"watch_dir,omitempty"`
	WatchDirEnabled bool   `json:"watch_dir_enabled,omitempty"`

	SpeedLimitDownKBps    int64 `json:"speed_limit_down_kbps,omitempty"`
	SpeedLimitDownEnabled bool  `json:"speed_limit_down_enabled,omitempty"`
	SpeedLimitUpKBps      int64 `json:"speed_limit_up_kbps,omitempty"`
	SpeedLimitUpEnabled   bool  `json:"speed_limit_up_enabled,omitempty"`

	AltSpeedDownKBps int64  `json:"alt_speed_down_kbps,omitempty"`
	AltSpeedUpKBps   int64  `json:"alt_speed_up_kbps,omitempty"`
	AltSpeedEnabled  bool   `json:"alt_speed_enabled,omitempty"`
	AltSpeedBegin    int    `json:"alt_speed_time_begin,omitempty"` // minutes since midnight
	AltSpeedEnd      int    `json:"alt_speed_time_end,omitempty"`
	AltSpeedDay      string `json:"alt_speed_day"` // e.g. "all", "weekdays"

	PeerLimit          int `json:"peer_limit"`
	PeerLimitPerTorrent int `json:"peer_limit_per_torrent"`

	// Encryption: 0 = tolerated, 1 = preferred, 2 = required.
	Encryption int `json:"encryption,omitempty"`

	DHTEnabled  bool `json:"dht_enabled"`
	PEXEnabled  bool `json:"pex_enabled"`
	LPDEnabled  bool `json:"lpd_enabled"`
	UTPEnabled  bool `json:"utp_enabled"`

	DownloadQueueSize    int  `json:"download_queue_size"`
	SeedQueueSize        int  `json:"seed_queue_size"`
	QueueStalledEnabled  bool `json:"queue_stalled_enabled,omitempty"`

	SeedRatioLimit   float64 `json:"seed_ratio_limit,omitempty"`
	SeedRatioEnabled bool    `json:"seed_ratio_limit_enabled,omitempty"`
	SeedIdleLimit    int     `json:"seed_idle_limit,omitempty"` // minutes
	SeedIdleEnabled  bool    `json:"seed_idle_limit_enabled,omitempty"`

	ProxyType             string `json:"proxy_type,omitempty"`
	ProxyHostname         string `json:"proxy_hostname,omitempty"`
	ProxyPort             int    `json:"proxy_port,omitempty"`
	ProxyAuthEnabled      bool   `json:"proxy_auth_enabled,omitempty"`
	ProxyUsername         string `json:"proxy_username,omitempty"`
	ProxyPassword         string `json:"proxy_password,omitempty"`
	ProxyPeerConnections  bool   `json:"proxy_peer_connections,omitempty"`

	// RpcIDs maps hex(InfoHash) -> RpcId, embedded in state.json under the
	// rpc_ids key.
	RpcIDs map[string]RpcId `json:"rpc_ids,omitempty"`

	// Labels and BandwidthPriorities are embedded alongside rpc_ids, keyed
	// by the same hex info-hash as RpcIDs.
	Labels              map[string][]string `json:"labels,omitempty"`
	BandwidthPriorities map[string]int      `json:"bandwidth_priorities,omitempty"`
}

// DefaultSessionState returns the documented defaults for a fresh data
// root; missing fields fall back to these on load.
func DefaultSessionState() SessionState {
	return SessionState{
		ListenInterface:     "0.0.0.0:51413",
		DownloadPath:        "downloads",
		PeerLimit:           200,
		PeerLimitPerTorrent: 50,
		DHTEnabled:          true,
		PEXEnabled:          true,
		LPDEnabled:          true,
		UTPEnabled:          true,
		DownloadQueueSize:   5,
		SeedQueueSize:       10,
		AltSpeedDay:         "all",
	}
}
