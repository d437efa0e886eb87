package taskqueue

import (
	"encoding/json"
	"time"
)

// Kind identifies the task family, which determines routing and which driver processes it.
type Kind string

const (
	KindScan      Kind = "scan"
	KindRip       Kind = "rip"
	KindTranscode Kind = "transcode"
	KindInsert    Kind = "insert"
)

// Owner is the process role that consumes a given Kind.
type Owner string

const (
	OwnerDaemon     Owner = "daemon"
	OwnerController Owner = "controller"
)

// RoutingOwner maps a task Kind to the owner allowed to claim it.
func RoutingOwner(kind Kind) Owner {
	switch kind {
	case KindScan, KindRip:
		return OwnerDaemon
	case KindTranscode, KindInsert:
		return OwnerController
	default:
		return ""
	}
}

// Task is the base schema shared by all kinds.
// Kind-specific attributes (track number, preset name, disc fingerprint,
// …) live in Payload so new kinds never require a schema migration.
type Task struct {
	ID        string          `json:"id"`
	Type      Kind            `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Input     *string         `json:"input"`
	Output    string          `json:"output"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CompletionStatus is the terminal state of a claimed task.
type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "success"
	CompletionFailed  CompletionStatus = "failed"
)

// ErrorInfo is the stable error shape persisted in failed completions.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Completion is the terminal record written by complete(). Task carries a snapshot of the originating task's routing fields
// so a failed completion can be resubmitted without a second lookup into a file
// in_progress/ has already removed.
type Completion struct {
	TaskID          string           `json:"task_id"`
	Status          CompletionStatus `json:"status"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     time.Time        `json:"completed_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	Result          json.RawMessage  `json:"result,omitempty"`
	Error           *ErrorInfo       `json:"error,omitempty"`
	Task            *Task            `json:"task,omitempty"`
}
