package domain

import "strings"

// RunStatus is the controller-level state of a build session.
type RunStatus string

const (
	RunStatusIdle       RunStatus = "idle"
	RunStatusPlanning   RunStatus = "planning"
	RunStatusConfirming RunStatus = "confirming"
	RunStatusExecuting  RunStatus = "executing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

var runStatusEdges = map[RunStatus][]RunStatus{
	RunStatusIdle:       {RunStatusPlanning},
	RunStatusPlanning:   {RunStatusConfirming, RunStatusFailed, RunStatusIdle},
	RunStatusConfirming: {RunStatusPlanning, RunStatusExecuting, RunStatusIdle},
	RunStatusExecuting:  {RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
	RunStatusCompleted:  {RunStatusPlanning, RunStatusIdle},
	RunStatusFailed:     {RunStatusPlanning, RunStatusIdle},
	RunStatusCancelled:  {RunStatusPlanning, RunStatusIdle},
}

// CanTransitionRunStatus reports whether the command table admits the
// edge. A status may always stay in place.
func CanTransitionRunStatus(current, next RunStatus) bool {
	if current == "" || next == "" {
		return false
	}
	if current == next {
		return true
	}
	for _, allowed := range runStatusEdges[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StageStatus is the derived, never authoritative, per-layer status.
type StageStatus string

const (
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusNotRun    StageStatus = "not-run"
)

// ProducerStatus is the authoritative per-producer status fed by a live
// stream or a rehydrated manifest.
type ProducerStatus string

const (
	ProducerStatusSuccess   ProducerStatus = "success"
	ProducerStatusError     ProducerStatus = "error"
	ProducerStatusRunning   ProducerStatus = "running"
	ProducerStatusPending   ProducerStatus = "pending"
	ProducerStatusSkipped   ProducerStatus = "skipped"
	ProducerStatusNotRunYet ProducerStatus = "not-run-yet"
)

// NormalizeProducerStatus maps free-form status values, as recorded in
// manifests or carried by executor events, to canonical statuses.
func NormalizeProducerStatus(value string) ProducerStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ProducerStatusSuccess), "succeeded", "ok":
		return ProducerStatusSuccess
	case string(ProducerStatusError), "failed", "failure":
		return ProducerStatusError
	case string(ProducerStatusRunning):
		return ProducerStatusRunning
	case string(ProducerStatusPending), "queued":
		return ProducerStatusPending
	case string(ProducerStatusSkipped):
		return ProducerStatusSkipped
	case string(ProducerStatusNotRunYet), "not-run":
		return ProducerStatusNotRunYet
	default:
		return ""
	}
}
