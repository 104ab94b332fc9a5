package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// GenerationRequest is what the user asks the generator for.
type GenerationRequest struct {
	LandingPageURL string   `json:"landing_page_url" binding:"required,url"`
	Keywords       []string `json:"keywords" binding:"required,min=1,dive,required"`
	BrandVoice     string   `json:"brand_voice,omitempty"`
	Language       string   `json:"language,omitempty"`
}

// GenerationJob records one structure generation run.
type GenerationJob struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Status      JobStatus         `json:"status"`
	Request     GenerationRequest `json:"request"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	ArchiveKey  string            `json:"archive_key,omitempty"`
	Attempts    int               `json:"attempts"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
