// Package server provides the HTTP server for gifkit.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateJobRequest is the HTTP request body for creating a new conversion.
// Exactly one of VideoBase64 and SourceURL must be set.
type CreateJobRequest struct {
	// VideoBase64 is the base64-encoded source video.
	VideoBase64 string `json:"video_base64,omitempty" validate:"omitempty,base64"`
	// VideoName is an optional file name for the uploaded video.
	VideoName string `json:"video_name,omitempty" validate:"omitempty,max=255"`
	// SourceURL is a remote video to download.
	SourceURL string `json:"source_url,omitempty" validate:"omitempty,url"`
	// Start and End are the trim window in seconds.
	Start float64 `json:"start" validate:"gte=0"`
	End   float64 `json:"end" validate:"gtfield=Start"`
	// FPS is the sampling rate. 0 selects the default.
	FPS int `json:"fps,omitempty" validate:"omitempty,oneof=5 10 15 20 24 30"`
	// Width is the output width. 0 selects the default.
	Width int `json:"width,omitempty" validate:"omitempty,oneof=160 240 320 480 640"`
	// Quality is the quantizer sampling factor, 1 is best.
	Quality int `json:"quality,omitempty" validate:"omitempty,min=1,max=100"`
	// Repeat is the loop count: -1 plays once, 0 loops forever.
	Repeat int `json:"repeat,omitempty" validate:"min=-1,max=65535"`
	// Transparent is a CSS color keyed out as transparent.
	Transparent string `json:"transparent,omitempty" validate:"omitempty,max=64"`
	// PushToS3 indicates whether to publish the GIF to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Source string `json:"source,omitempty"`
	// Width and Height are the planned output size.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// Frames is the planned frame count.
	Frames int `json:"frames"`
	// CaptureDone counts sampled frames.
	CaptureDone int `json:"capture_done"`
	// EncodeProgress is the encoded fraction, 0..1.
	EncodeProgress float64 `json:"encode_progress"`
	// Error contains any error message if the job failed.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	// ArtifactURL is the S3 URL, or the artifact endpoint for local results.
	ArtifactURL  string     `json:"artifact_url,omitempty"`
	ArtifactSize int        `json:"artifact_size,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// CropRequest is a crop rectangle in pixels of the rotated image.
type CropRequest struct {
	X      int `json:"x" validate:"gte=0"`
	Y      int `json:"y" validate:"gte=0"`
	Width  int `json:"width" validate:"gt=0"`
	Height int `json:"height" validate:"gt=0"`
}

// EditImageRequest is the HTTP request body for editing an image.
// Exactly one of ImageBase64 and SourceURL must be set.
type EditImageRequest struct {
	ImageBase64 string `json:"image_base64,omitempty" validate:"omitempty,base64"`
	SourceURL   string `json:"source_url,omitempty" validate:"omitempty,url"`
	// Rotate is a clockwise angle in degrees.
	Rotate float64      `json:"rotate,omitempty" validate:"gte=-360,lte=360"`
	Filter string       `json:"filter,omitempty" validate:"omitempty,oneof=none grayscale sepia invert brightness contrast"`
	Crop   *CropRequest `json:"crop,omitempty"`
	Format string       `json:"format,omitempty" validate:"omitempty,oneof=png jpg jpeg webp"`
	// Quality applies to jpeg and webp output.
	Quality int `json:"quality,omitempty" validate:"omitempty,min=1,max=100"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// ActiveJob is the ID of the running conversion, if any.
	ActiveJob string `json:"active_job,omitempty"`
}
