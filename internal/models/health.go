package models

import "time"

// HealthSnapshot is a readiness report fusing the independent subsystem
// checks. Snapshots are recomputed wholesale on every poll and replaced
// atomically, never mutated in place, so readers always see a consistent
// view.
type HealthSnapshot struct {
	InferenceReachable bool      `json:"inference_reachable"`
	CuratorReachable   bool      `json:"curator_reachable"`
	VaultWritable      bool      `json:"vault_writable"`
	ModelsAvailable    []string  `json:"models_available"`
	Issues             []string  `json:"issues"`
	CheckedAt          time.Time `json:"checked_at"`
}

// Healthy reports whether every subsystem check passed.
func (s HealthSnapshot) Healthy() bool {
	return s.InferenceReachable && s.CuratorReachable && s.VaultWritable
}

// UnknownHealth is the snapshot served before the first poll completes.
func UnknownHealth() HealthSnapshot {
	return HealthSnapshot{
		ModelsAvailable: []string{},
		Issues:          []string{"status not yet polled"},
	}
}
