package models

import (
	"time"

	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/quality"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StageDuration is one entry of the per-stage timing list.
type StageDuration struct {
	Stage string  `json:"stage"`
	Ms    float64 `json:"ms"`
}

// Enhancement records a single enhance call, from the HTTP API or a batch.
type Enhancement struct {
	ID      string  `gorm:"primaryKey;size:36" json:"id"`
	BatchID *string `gorm:"index;size:36" json:"batch_id,omitempty"`
	Source  string  `gorm:"not null" json:"source"` // upload filename or input path

	Status     string  `gorm:"not null;index" json:"status"`
	Error      *string `json:"error,omitempty"`
	OutputPath *string `json:"output_path,omitempty"` // relative to the output store

	InputWidth    int     `gorm:"not null;default:0" json:"input_width"`
	InputHeight   int     `gorm:"not null;default:0" json:"input_height"`
	OutputWidth   int     `gorm:"not null;default:0" json:"output_width"`
	OutputHeight  int     `gorm:"not null;default:0" json:"output_height"`
	FacesDetected int     `gorm:"not null;default:0" json:"faces_detected"`
	ProcessingMs  float64 `gorm:"not null;default:0" json:"processing_ms"`

	Params       enhance.Params  `gorm:"serializer:json" json:"params"`
	StageTimings []StageDuration `gorm:"serializer:json" json:"stage_timings"`
	Metrics      *quality.Report `gorm:"serializer:json" json:"metrics,omitempty"`
	PSNR         *float64        `gorm:"column:psnr" json:"psnr,omitempty"`
	SSIM         *float64        `gorm:"column:ssim" json:"ssim,omitempty"`

	CameraMake  *string    `json:"camera_make,omitempty"`
	CameraModel *string    `json:"camera_model,omitempty"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (Enhancement) TableName() string {
	return "enhancements"
}

// StageDurations converts pipeline timings into their stored form.
func StageDurations(t enhance.Timings) []StageDuration {
	out := make([]StageDuration, len(t.Stages))
	for i, s := range t.Stages {
		out[i] = StageDuration{Stage: s.Stage, Ms: float64(s.Duration.Microseconds()) / 1000}
	}
	return out
}
