package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/novahealth/nova/internal/jobstore"
	"github.com/novahealth/nova/internal/timeline"
)

// listLimit caps the number of jobs returned by GET /api/jobs.
const listLimit = 50

// handleTranscribe accepts a multipart upload under the "audio" field,
// stores it, and starts a background transcription job.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"audio\" is required")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		s.log.Error("create upload dir", "dir", s.cfg.UploadDir, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	id := uuid.New()
	// The stored name is the job ID; the client filename is metadata only.
	dst := filepath.Join(s.cfg.UploadDir, id.String()+filepath.Ext(header.Filename))
	out, err := os.Create(dst)
	if err != nil {
		s.log.Error("create upload file", "path", dst, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dst)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.log.Error("write upload", "path", dst, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if err := out.Close(); err != nil {
		s.log.Error("close upload", "path", dst, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job := &jobstore.Job{
		ID:        id,
		Filename:  header.Filename,
		AudioPath: dst,
		Status:    jobstore.StatusPending,
	}
	if err := s.store.Create(r.Context(), job); err != nil {
		s.log.Error("create job", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	s.wg.Add(1)
	go s.process(job)

	s.log.Info("job accepted", "id", id, "filename", header.Filename)
	writeJSON(w, http.StatusAccepted, job)
}

// process runs the pipeline for one job on the server's lifetime context.
func (s *Server) process(job *jobstore.Job) {
	defer s.wg.Done()

	ctx := s.jobCtx
	s.metrics.ActiveJobs.Add(ctx, 1)
	defer s.metrics.ActiveJobs.Add(ctx, -1)

	if err := s.store.MarkProcessing(ctx, job.ID); err != nil {
		s.log.Error("mark processing", "id", job.ID, "err", err)
		return
	}

	result, decisions, err := s.proc.ProcessAudio(ctx, job.AudioPath, s.orch.Vocabulary)
	if err != nil {
		s.log.Error("job failed", "id", job.ID, "err", err)
		if ferr := s.store.Fail(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
			s.log.Error("record failure", "id", job.ID, "err", ferr)
		}
		return
	}

	if err := s.store.Complete(ctx, job.ID, result, decisions); err != nil {
		s.log.Error("record completion", "id", job.ID, "err", err)
		return
	}
	s.log.Info("job completed", "id", job.ID,
		"words", result.WordCount(), "decisions", len(decisions))
}

// handleJobStatus returns the job record without its payloads.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	// Status polling stays light; payloads come from /result.
	job.Result = nil
	job.Decisions = nil
	writeJSON(w, http.StatusOK, job)
}

// resultResponse is the payload for GET /api/jobs/{id}/result.
type resultResponse struct {
	Job      *jobstore.Job     `json:"job"`
	Clinical any               `json:"clinical"`
	Timeline timeline.Timeline `json:"timeline"`
}

// handleJobResult returns the merged transcript plus derived clinical and
// timeline data. 409 until the job completes.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	switch job.Status {
	case jobstore.StatusCompleted:
	case jobstore.StatusFailed:
		writeError(w, http.StatusConflict, "job failed: "+job.Error)
		return
	default:
		writeError(w, http.StatusConflict, "job is "+string(job.Status))
		return
	}

	ex := s.extractor.Extract(job.Result)
	tl := s.timeline.Generate(job.Result, job.Decisions, ex)

	writeJSON(w, http.StatusOK, resultResponse{
		Job:      job,
		Clinical: ex,
		Timeline: tl,
	})
}

// handleJobAudio streams the stored upload back for playback. ServeContent
// handles range requests, which audio players rely on for seeking.
func (s *Server) handleJobAudio(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	f, err := os.Open(job.AudioPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "audio no longer available")
		return
	}
	defer f.Close()
	http.ServeContent(w, r, job.Filename, job.CreatedAt, f)
}

// handleListJobs returns recent jobs, newest first, without payloads.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.List(r.Context(), listLimit)
	if err != nil {
		s.log.Error("list jobs", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	for _, job := range jobs {
		job.Result = nil
		job.Decisions = nil
	}
	if jobs == nil {
		jobs = []*jobstore.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// lookupJob parses the {id} path value and loads the job, writing the error
// response itself when either step fails.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*jobstore.Job, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return nil, false
	}
	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return nil, false
		}
		s.log.Error("get job", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return nil, false
	}
	return job, true
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
