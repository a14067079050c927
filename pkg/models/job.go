package models

import (
	"path/filepath"

	"github.com/google/uuid"
)

type ItemStatus string

const (
	ItemSuccess ItemStatus = "SUCCESS"
	ItemFailure ItemStatus = "FAILURE"
)

// Upload is one local file staged for submission.
type Upload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

func NewUpload(path string) Upload {
	return Upload{
		ID:   uuid.New().String(),
		Name: filepath.Base(path),
		Path: path,
	}
}

// JobHandle identifies one batch job on the upscale service.
type JobHandle struct {
	GroupID string `json:"group_id"`
}

func (h JobHandle) IsZero() bool {
	return h.GroupID == ""
}

type JobStatus struct {
	Total          int          `json:"total"`
	CompletedCount int          `json:"completed_count"`
	Results        []ItemResult `json:"results"`
}

// Terminal reports whether every item of the job has resolved. It does not
// distinguish a batch where every item failed from one where every item
// succeeded.
func (s JobStatus) Terminal() bool {
	return s.CompletedCount == s.Total
}

// Percent is completed/total as a percentage, 0 when total is 0.
func (s JobStatus) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.CompletedCount) / float64(s.Total) * 100
}

type ItemResult struct {
	Original   string     `json:"original"`
	Status     ItemStatus `json:"status,omitempty"`
	OutputPath string     `json:"output_path,omitempty"`
	OutputDir  string     `json:"output_dir,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Resolved returns the item status, deriving it from output_path when the
// service left it out (the synchronous endpoint never sends one).
func (r ItemResult) Resolved() ItemStatus {
	switch r.Status {
	case ItemSuccess, ItemFailure:
		return r.Status
	}
	if r.OutputPath != "" {
		return ItemSuccess
	}
	return ItemFailure
}

type ExtractResult struct {
	ExtractedCount  int          `json:"extracted_count"`
	UpscaledResults []ItemResult `json:"upscaled_results,omitempty"`
}

type CancelAck struct {
	Message string `json:"message"`
}
