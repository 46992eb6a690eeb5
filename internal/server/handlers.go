package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/gifkit/internal/editor"
	"github.com/maauso/gifkit/internal/fetch"
	"github.com/maauso/gifkit/internal/job"
	"github.com/maauso/gifkit/internal/job/id"
)

// DefaultMaxBodyBytes caps JSON request bodies, base64 payloads included.
const DefaultMaxBodyBytes = 256 << 20

// ImageFetcher downloads remote images for the editor.
type ImageFetcher interface {
	FetchImage(ctx context.Context, rawURL string) (*fetch.File, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.ConvertService
	images             ImageFetcher
	validator          *validator.Validate
	logger             *slog.Logger
	maxBodyBytes       int64
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithImageFetcher enables source_url in image edit requests.
func WithImageFetcher(f ImageFetcher) HandlerOption {
	return func(h *Handlers) {
		h.images = f
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ConvertService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		maxBodyBytes:       DefaultMaxBodyBytes,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", ActiveJob: h.service.Active()})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := job.ConvertInput{
		VideoName:   req.VideoName,
		SourceURL:   req.SourceURL,
		Start:       req.Start,
		End:         req.End,
		FPS:         req.FPS,
		Width:       req.Width,
		Quality:     req.Quality,
		Repeat:      req.Repeat,
		Transparent: req.Transparent,
		PushToS3:    req.PushToS3,
	}
	if req.VideoBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.VideoBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "video_base64 is not valid base64", "VALIDATION_ERROR")
			return
		}
		input.VideoData = data
	}

	// Create job first (synchronously)
	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrInvalidInput):
			h.logger.Warn("job input rejected", slog.String("error", err.Error()))
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, job.ErrJobInFlight):
			writeError(w, http.StatusConflict, "a conversion is already in progress", "JOB_IN_FLIGHT")
		default:
			h.logger.Error("failed to create job",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		}
		return
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if processErr := h.service.ProcessExistingJob(ctx, jobID); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("source", createdJob.Source),
		slog.Int("fps", req.FPS),
		slog.Int("width", req.Width),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.GetStatus()),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.jobLookupError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// GetArtifact handles GET /jobs/{id}/artifact requests.
func (h *Handlers) GetArtifact(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	rc, foundJob, err := h.service.Artifact(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrArtifactNotReady) {
			writeError(w, http.StatusConflict, err.Error(), "ARTIFACT_NOT_READY")
			return
		}
		h.jobLookupError(w, jobID, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Length", strconv.Itoa(foundJob.ArtifactSize))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", foundJob.ID+".gif"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream artifact",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJob handles DELETE /jobs/{id} requests. Active jobs are cancelled,
// terminal jobs are removed with their artifact.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.jobLookupError(w, jobID, err)
		return
	}

	if foundJob.IsTerminal() {
		if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
			h.jobLookupError(w, jobID, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.service.CancelJob(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error(), "JOB_NOT_CANCELLABLE")
			return
		}
		h.jobLookupError(w, jobID, err)
		return
	}
	h.logger.Info("job cancel requested", slog.String("job_id", jobID))

	// a running job reaches CANCELLED asynchronously
	status := foundJob.GetStatus()
	if updated, err := h.service.GetJob(r.Context(), jobID); err == nil {
		status = updated.GetStatus()
	}
	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     jobID,
		Status: string(status),
	})
}

// EditImage handles POST /images/edit requests and responds with the
// encoded image.
func (h *Handlers) EditImage(w http.ResponseWriter, r *http.Request) {
	var req EditImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if (req.ImageBase64 == "") == (req.SourceURL == "") {
		writeError(w, http.StatusBadRequest, "exactly one of image_base64 and source_url is required", "VALIDATION_ERROR")
		return
	}

	format, err := editor.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	data, ok := h.imageSource(w, r, req)
	if !ok {
		return
	}

	img, err := editor.Decode(bytes.NewReader(data))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_IMAGE")
		return
	}

	ops := editor.Ops{Rotate: req.Rotate, Filter: editor.Filter(req.Filter)}
	if req.Crop != nil {
		rect := image.Rect(req.Crop.X, req.Crop.Y, req.Crop.X+req.Crop.Width, req.Crop.Y+req.Crop.Height)
		ops.Crop = &rect
	}

	out, err := editor.Apply(img, ops)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "EDIT_FAILED")
		return
	}

	var buf bytes.Buffer
	if err := editor.Encode(&buf, out, format, req.Quality); err != nil {
		h.logger.Error("failed to encode image",
			slog.String("format", string(format)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to encode image", "ENCODE_FAILED")
		return
	}

	b := out.Bounds()
	h.logger.Info("image edited",
		slog.String("format", string(format)),
		slog.Int("width", b.Dx()),
		slog.Int("height", b.Dy()),
		slog.Int("bytes", buf.Len()),
	)

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "edited."+format.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handlers) imageSource(w http.ResponseWriter, r *http.Request, req EditImageRequest) ([]byte, bool) {
	if req.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "image_base64 is not valid base64", "VALIDATION_ERROR")
			return nil, false
		}
		return data, true
	}

	if h.images == nil {
		writeError(w, http.StatusBadRequest, "source_url is not supported", "FETCH_DISABLED")
		return nil, false
	}
	file, err := h.images.FetchImage(r.Context(), req.SourceURL)
	if err != nil {
		if errors.Is(err, fetch.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return nil, false
		}
		h.logger.Warn("image fetch failed",
			slog.String("url", req.SourceURL),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error(), "FETCH_FAILED")
		return nil, false
	}
	return file.Data, true
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	// Validate request
	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// jobIDParam reads the {id} path value and rejects IDs that id.Generate
// could not have produced.
func jobIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	}
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "malformed job ID", "INVALID_JOB_ID")
		return "", false
	}
	return jobID, true
}

func (h *Handlers) jobLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	if errors.Is(err, job.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, err.Error(), "JOB_NOT_TERMINAL")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

func toJobResponse(j *job.Job) JobResponse {
	c := j.Clone()
	resp := JobResponse{
		ID:             c.ID,
		Status:         string(c.Status),
		Source:         c.Source,
		Width:          c.Width,
		Height:         c.Height,
		Frames:         c.Frames,
		CaptureDone:    c.CaptureDone,
		EncodeProgress: c.EncodeProgress,
		Error:          c.Error,
		ErrorKind:      string(c.ErrorKind),
		ArtifactSize:   c.ArtifactSize,
		CreatedAt:      c.CreatedAt,
	}
	if !c.CompletedAt.IsZero() {
		resp.CompletedAt = &c.CompletedAt
	}

	// Include the artifact location if completed
	if c.Status == job.StatusCompleted {
		if c.ArtifactURL != "" {
			resp.ArtifactURL = c.ArtifactURL
		} else if c.ArtifactPath != "" {
			resp.ArtifactURL = "/jobs/" + c.ID + "/artifact"
		}
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
