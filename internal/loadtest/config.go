// Package loadtest drives the history save pipeline of a running server
// and checks that every accepted save was persisted exactly once.
package loadtest

import (
	"encoding/json"
	"time"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL string        // Base URL of the service
	Token   string        // Bearer token; empty relies on the server's mock user
	Saves   int           // Number of save requests to send
	Repeat  float64       // Share of requests that resend an earlier key, in [0, 1)
	Workers int           // Number of concurrent senders
	Timeout time.Duration // HTTP request timeout
	Settle  time.Duration // How long to wait for workers to persist accepted saves
	Poll    time.Duration // History poll interval while settling
	Seed    uint64        // Seed for generated drills; 0 picks one
	Output  string        // File to write the generated requests to; empty skips it
}

// Save is one request to POST /api/history. Drill is the id the client
// sent; the server stores the drill under a new one.
type Save struct {
	Key   string          `json:"key"`
	Body  json.RawMessage `json:"body"`
	Drill string          `json:"drillId"`
}

// Stats holds run statistics.
type Stats struct {
	Generated   int
	Submitted   int64
	Accepted    int64
	Duplicate   int64
	Throttled   int64
	Failed      int64
	Before      int
	After       int
	Expected    int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	SavesPerSec float64
}
