package torrentmgr

import "github.com/anacrolix/torrent"

// dhtNodeCount sums NumNodes() across every DHT server the client runs
// (one per listened network, typically udp4 + udp6), feeding the
// SessionSnapshot.dht_nodes aggregate. anacrolix/torrent exposes DHT
// servers through Client.DhtServers() rather than a single node-count
// call, since it's anacrolix/dht/v2 instances under the hood.
func dhtNodeCount(client *torrent.Client) int {
	if client == nil {
		return 0
	}
	total := 0
	for _, srv := range client.DhtServers() {
		total += srv.NumNodes()
	}
	return total
}
