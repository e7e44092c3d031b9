package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/api/middleware"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/jobs"
	"github.com/dvloznov/quantoda/internal/logger"
	"github.com/dvloznov/quantoda/internal/normalizer"
	"github.com/dvloznov/quantoda/internal/session"
)

// Analyzer runs one statement analysis.
type Analyzer interface {
	Analyze(ctx context.Context, owner string, in normalizer.Input) (*domain.HistoryRecord, error)
}

// Broadcaster receives job snapshots for live delivery.
type Broadcaster interface {
	BroadcastJobUpdate(job jobs.AnalysisJob)
}

// AnalysesHandler accepts statements and queues them for analysis.
type AnalysesHandler struct {
	sessions  *session.Manager
	publisher jobs.Publisher
	maxUpload int64
	log       zerolog.Logger
}

// NewAnalysesHandler creates a new analyses handler. maxUpload caps the
// request body in bytes.
func NewAnalysesHandler(sessions *session.Manager, publisher jobs.Publisher, maxUpload int64, log zerolog.Logger) *AnalysesHandler {
	return &AnalysesHandler{
		sessions:  sessions,
		publisher: publisher,
		maxUpload: maxUpload,
		log:       log,
	}
}

// CreateAnalysis handles POST /api/analyses
//
// The body is a multipart form with either a "file" part, sample=true for
// the demo statement, or a "text" field with pasted statement lines.
func (h *AnalysesHandler) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := middleware.SessionIDFromContext(ctx)
	if sessionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Session-ID header is required")
		return
	}

	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	job, status, msg := h.readStatement(r)
	if status != 0 {
		middleware.WriteError(w, status, msg)
		return
	}

	sess, err := h.sessions.BeginAnalysis(sessionID)
	if err != nil {
		middleware.WriteError(w, statusFor(err), domain.UserMessage(err))
		return
	}

	job.SessionID = sess.ID
	job.Owner = sess.Owner()

	if err := h.publisher.PublishAnalysis(ctx, job); err != nil {
		h.log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to enqueue analysis job")
		if _, ferr := h.sessions.FinishAnalysis(sess.ID, false); ferr != nil {
			h.log.Warn().Err(ferr).Str("session_id", sess.ID).Msg("Failed to release analysis slot")
		}
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue analysis")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("session_id", sess.ID).
		Str("filename", job.Filename).
		Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  job.JobID,
		"status": string(job.Status),
	})
}

// readStatement builds the job input from the form. A non-zero status
// means the request was rejected.
func (h *AnalysesHandler) readStatement(r *http.Request) (*jobs.AnalysisJob, int, string) {
	if err := r.ParseMultipartForm(h.maxUploadOrDefault()); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, http.StatusRequestEntityTooLarge, "File too large"
		}
		return nil, http.StatusBadRequest, "Invalid form data"
	}

	if r.FormValue("sample") == "true" {
		return &jobs.AnalysisJob{
			Filename: "exemplo.csv",
			MIMEType: "text/csv",
			Override: normalizer.SampleStatement,
		}, 0, ""
	}

	if text := strings.TrimSpace(r.FormValue("text")); text != "" {
		return &jobs.AnalysisJob{
			Filename: "texto.txt",
			MIMEType: "text/plain",
			Override: text,
		}, 0, ""
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, "file, text or sample=true is required"
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	mimeType := header.Header.Get("Content-Type")
	if !normalizer.Supported(mimeType, filename) {
		return nil, http.StatusUnsupportedMediaType, domain.UserMessage(domain.ErrUnsupportedFormat)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, http.StatusBadRequest, "Failed to read file"
	}

	return &jobs.AnalysisJob{
		Filename: filename,
		MIMEType: mimeType,
		Data:     data,
	}, 0, ""
}

func (h *AnalysesHandler) maxUploadOrDefault() int64 {
	if h.maxUpload > 0 {
		return h.maxUpload
	}
	return 10 << 20
}

// NewAnalysisJobHandler returns the queue handler that runs analyses.
// Analysis errors are permanent; anything else (history storage, archive)
// is left to the queue's retry policy.
func NewAnalysisJobHandler(analyzer Analyzer) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.AnalysisJob) error {
		log := logger.FromContext(ctx)
		log.Info().Str("filename", job.Filename).Msg("Processing analysis job")

		record, err := analyzer.Analyze(ctx, job.Owner, normalizer.Input{
			Data:     job.Data,
			MIMEType: job.MIMEType,
			Filename: job.Filename,
			Override: job.Override,
		})
		if err != nil {
			if isAnalysisError(err) {
				return jobs.Permanent(err)
			}
			return err
		}

		job.Result = record
		return nil
	}
}

func isAnalysisError(err error) bool {
	for _, target := range []error{
		domain.ErrUnsupportedFormat,
		domain.ErrClassification,
		domain.ErrResponseParse,
		domain.ErrClassificationTimeout,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// JobUpdates returns the queue update hook: terminal jobs release the
// session's analysis slot (consuming a credit on success), then every
// snapshot is forwarded to the broadcaster.
func JobUpdates(sessions *session.Manager, b Broadcaster, log zerolog.Logger) func(jobs.AnalysisJob) {
	return func(job jobs.AnalysisJob) {
		if job.Status.Terminal() {
			if _, err := sessions.FinishAnalysis(job.SessionID, job.Status == jobs.JobStatusCompleted); err != nil {
				log.Warn().Err(err).Str("job_id", job.JobID).Str("session_id", job.SessionID).Msg("Failed to release analysis slot")
			}
		}
		if b != nil {
			b.BroadcastJobUpdate(job)
		}
	}
}
