package domain

import "time"

// ExecutionLogEntry is one appended record of the run log. Entries are
// arrival-ordered and never mutated or reordered after insertion; Seq
// is assigned monotonically at append time.
type ExecutionLogEntry struct {
	ID           string
	Seq          int64
	Timestamp    time.Time
	Type         string
	Message      string
	Status       ProducerStatus
	ErrorDetails string
}

// ArtifactInfo is the persisted per-artifact record of a prior run, the
// unit of manifest rehydration. Blob storage stays with the external
// collaborators; only the record travels through this core.
type ArtifactInfo struct {
	ID            string
	Producer      string
	Status        string
	FailureReason string
	Hash          string
	MimeType      string
	Size          int64
}
