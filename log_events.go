package main

// Typed records for the line dialects a ckpool log can contain. Each
// event carries only the fields its dialect defines; optional JSON
// payload fields are pointers so a missing value is distinguishable from
// a zero and never overwrites persisted data.

type lineEvent interface {
	isLineEvent()
}

// poolStatusPayload is the JSON object of a "Pool: {...}" line. Field
// casing follows ckpool's output exactly (Users/Workers/SPS1m are
// capitalized upstream).
type poolStatusPayload struct {
	Hashrate1m   *string  `json:"hashrate1m"`
	Hashrate5m   *string  `json:"hashrate5m"`
	Hashrate15m  *string  `json:"hashrate15m"`
	Hashrate1hr  *string  `json:"hashrate1hr"`
	Hashrate6hr  *string  `json:"hashrate6hr"`
	Hashrate1d   *string  `json:"hashrate1d"`
	Hashrate7d   *string  `json:"hashrate7d"`
	Runtime      *int64   `json:"runtime"`
	LastUpdate   *int64   `json:"lastupdate"`
	Users        *int64   `json:"Users"`
	Workers      *int64   `json:"Workers"`
	Idle         *int64   `json:"Idle"`
	Disconnected *int64   `json:"Disconnected"`
	Accepted     *int64   `json:"accepted"`
	Rejected     *int64   `json:"rejected"`
	BestShare    *float64 `json:"bestshare"`
	SPS1m        *float64 `json:"SPS1m"`
	SPS5m        *float64 `json:"SPS5m"`
	Diff         *float64 `json:"diff"`
}

type poolStatusEvent struct {
	Ts      int64
	Payload poolStatusPayload
}

// userStatsPayload is the JSON object of a "User <addr> {...}" line.
// User/Address echo the composite identity when the pool reports a
// sub-account; everything else is the wallet's last-known status.
type userStatsPayload struct {
	User        string   `json:"user"`
	Address     string   `json:"address"`
	Hashrate1m  *string  `json:"hashrate1m"`
	Hashrate5m  *string  `json:"hashrate5m"`
	Hashrate1hr *string  `json:"hashrate1hr"`
	Hashrate1d  *string  `json:"hashrate1d"`
	Hashrate7d  *string  `json:"hashrate7d"`
	LastShare   *int64   `json:"lastshare"`
	Workers     *int64   `json:"workers"`
	Shares      *int64   `json:"shares"`
	BestShare   *float64 `json:"bestshare"`
	BestEver    *float64 `json:"bestever"`
	Authorised  *int64   `json:"authorised"`
}

type userStatsEvent struct {
	Ts      int64
	Address string
	Payload userStatsPayload
}

// workerAuthEvent marks (wallet, worker) active as of Ts. Worker is the
// sentinel "X" when the line carried no trustworthy worker name.
type workerAuthEvent struct {
	Ts     int64
	Wallet string
	Worker string
}

// workerDropEvent marks (wallet, worker) inactive as of Ts.
type workerDropEvent struct {
	Ts     int64
	Wallet string
	Worker string
}

const (
	shareAccepted = "accepted"
	shareRejected = "rejected"
)

// shareEvent is one accepted/rejected share submission. Worker is the
// raw fragment after the address dot, empty when absent. ScaledDiff is
// RawDiff evaluated ("a/b" fractions included); nil when unparseable.
type shareEvent struct {
	Ts         int64
	Status     string
	Address    string
	Worker     string
	RawDiff    string
	ScaledDiff *float64
	SourceIP   string
}

func (poolStatusEvent) isLineEvent() {}
func (userStatsEvent) isLineEvent()  {}
func (workerAuthEvent) isLineEvent() {}
func (workerDropEvent) isLineEvent() {}
func (shareEvent) isLineEvent()      {}
