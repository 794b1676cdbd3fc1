package hermes

import "time"

type ScoresComputedEvent struct {
	RunID          string             `json:"run_id"`
	Granularity    string             `json:"granularity"`
	Department     string             `json:"department,omitempty"`
	Variables      []string           `json:"variables"`
	Weights        map[string]float64 `json:"weights,omitempty"`
	AccessVariable string             `json:"access_variable"`
	Alpha          float64            `json:"alpha"`
	Skipped        []string           `json:"skipped,omitempty"`
	Units          int                `json:"units"`
	Scored         int                `json:"scored"`
	TopCodes       []string           `json:"top_codes"`
	DurationMs     float64            `json:"duration_ms"`
	Timestamp      time.Time          `json:"timestamp"`
}

type SnapshotReloadedEvent struct {
	SnapshotID string         `json:"snapshot_id"`
	Units      map[string]int `json:"units"`
	Variables  map[string]int `json:"variables"`
	Trigger    string         `json:"trigger"`
	Timestamp  time.Time      `json:"timestamp"`
}

type ReloadRequestEvent struct {
	Reason string `json:"reason,omitempty"`
}
