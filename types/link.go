package types

// ---- Link state (retained on candata/status) ----

// Link is the connectivity of the controller as seen from the bus.
type Link string

const (
	LinkUp   Link = "up"
	LinkDown Link = "down"
)

// Stats are monotonically increasing acquisition counters.
type Stats struct {
	RxFrames  uint64 `json:"rx_frames"`
	Decoded   uint64 `json:"decoded"`
	Generic   uint64 `json:"generic"`
	Malformed uint64 `json:"malformed"`
	RxDropped uint64 `json:"rx_dropped"`
	TxFrames  uint64 `json:"tx_frames"`
	TxDropped uint64 `json:"tx_dropped"`
	TxErrors  uint64 `json:"tx_errors"`
	LastID    uint32 `json:"last_id"`
}

type LinkStatus struct {
	Link      Link   `json:"link"`
	Driver    string `json:"driver"`
	LastFrame int64  `json:"last_frame_ms"` // 0 = never
	Params    int    `json:"params"`
	Stats     Stats  `json:"stats"`
	TS        int64  `json:"ts_ms"`
}
