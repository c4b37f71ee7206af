// Package models defines the domain models for the intake pipeline service
package models

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a pipeline job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	// StatusNotFound is synthesized for unknown jobs and never stored.
	StatusNotFound Status = "not_found"
)

// IsTerminal reports whether no further mutation may occur for the job instance.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// IsActive reports whether an invocation is still running for the job.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

// Phase tokens written by the invoker and the status query service.
const (
	PhaseQueued      = "queued"
	PhaseSavingForm  = "saving_form"
	PhaseNormalizing = "normalizing"
	PhaseFinalizing  = "finalizing"
	PhaseComplete    = "complete"
	PhaseFailed      = "failed"
)

// PipelineStatus is the cached state of one job
type PipelineStatus struct {
	JobID         string          `json:"jobId"`
	Status        Status          `json:"status"`
	Phase         string          `json:"phase"`
	Progress      int             `json:"progress"`
	CurrentPhase  string          `json:"currentPhase"`
	StartTime     time.Time       `json:"startTime"`
	EndTime       *time.Time      `json:"endTime,omitempty"`
	ExecutionTime int64           `json:"executionTime,omitempty"` // milliseconds
	Error         string          `json:"error,omitempty"`
	ErrorClass    string          `json:"errorClass,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ExpiresAt     time.Time       `json:"-"`
}

// StatusView is the client-facing snapshot shared by the status endpoint and the stream
type StatusView struct {
	Success       bool            `json:"success"`
	CaseID        string          `json:"caseId"`
	RealCaseID    string          `json:"realCaseId,omitempty"`
	Status        Status          `json:"status"`
	Phase         string          `json:"phase,omitempty"`
	Progress      int             `json:"progress"`
	CurrentPhase  string          `json:"currentPhase,omitempty"`
	StartTime     *time.Time      `json:"startTime,omitempty"`
	EndTime       *time.Time      `json:"endTime,omitempty"`
	ExecutionTime int64           `json:"executionTime,omitempty"`
	Error         string          `json:"error,omitempty"`
	ErrorClass    string          `json:"errorClass,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// View strips internal fields and returns the client-facing form of the status.
func (p PipelineStatus) View(caseID string) StatusView {
	v := StatusView{
		Success:       true,
		CaseID:        caseID,
		Status:        p.Status,
		Phase:         p.Phase,
		Progress:      p.Progress,
		CurrentPhase:  p.CurrentPhase,
		EndTime:       p.EndTime,
		ExecutionTime: p.ExecutionTime,
		Error:         p.Error,
		ErrorClass:    p.ErrorClass,
		Result:        p.Result,
	}
	if !p.StartTime.IsZero() {
		start := p.StartTime
		v.StartTime = &start
	}
	if caseID != p.JobID {
		v.RealCaseID = p.JobID
	}
	return v
}

// DefaultDocumentTypes is the output-document vocabulary used when none is configured.
var DefaultDocumentTypes = []string{
	"summons",
	"complaint",
	"answer",
	"cover_sheet",
	"declaration",
}
