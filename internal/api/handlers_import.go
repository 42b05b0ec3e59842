package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/the-deep/deeptree/internal/parser"
	"github.com/the-deep/deeptree/internal/pipeline"
	"github.com/the-deep/deeptree/internal/tree"
)

func pollURL(jobID string) string {
	return fmt.Sprintf("/api/import/%s/status", jobID)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	job := pipeline.NewUploadJob(filename, r.FormValue("title"), data)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": pollURL(job.ID),
	})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleBatchImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	var rejected []pipeline.BatchResult
	var uploads []pipeline.Upload
	for _, fh := range files {
		filename := sanitizeFilename(fh.Filename)
		if !parser.IsSupportedExtension(filename) {
			rejected = append(rejected, pipeline.BatchResult{
				Filename: filename,
				Error:    fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)),
			})
			continue
		}

		f, err := fh.Open()
		if err != nil {
			rejected = append(rejected, pipeline.BatchResult{Filename: filename, Error: "failed to open file"})
			continue
		}
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > s.cfg.MaxUploadBytes {
			rejected = append(rejected, pipeline.BatchResult{Filename: filename, Error: "file too large or read error"})
			continue
		}
		uploads = append(uploads, pipeline.Upload{Filename: filename, Data: data})
	}

	results, err := s.orchestrator.SubmitBatch(r.Context(), uploads)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jobs := make([]map[string]any, 0, len(results)+len(rejected))
	for _, res := range append(results, rejected...) {
		entry := map[string]any{"filename": res.Filename}
		if res.Error != "" {
			entry["error"] = res.Error
		} else {
			entry["job_id"] = res.JobID
			entry["status"] = res.Status
			entry["poll_url"] = pollURL(res.JobID)
		}
		jobs = append(jobs, entry)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs})
}

type remoteImportRequest struct {
	FrameworkID string `json:"framework_id" validate:"required"`
	WidgetKey   string `json:"widget_key" validate:"required"`
	Title       string `json:"title" validate:"max=200"`
}

func (s *Server) handleRemoteImport(w http.ResponseWriter, r *http.Request) {
	var req remoteImportRequest
	if !s.decode(w, r, &req) {
		return
	}
	job := pipeline.NewPlatformJob(req.FrameworkID, req.WidgetKey, req.Title)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": pollURL(job.ID),
	})
}

type pushRequest struct {
	FrameworkID string `json:"framework_id" validate:"required"`
	WidgetKey   string `json:"widget_key" validate:"required"`
}

// handlePush writes a stored tree back to a platform organigram widget.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if !s.decode(w, r, &req) {
		return
	}
	pc := s.orchestrator.Platform()
	if pc == nil {
		s.fail(w, r, pipeline.ErrPlatformDisabled)
		return
	}
	doc, ok := s.load(w, r)
	if !ok {
		return
	}
	err := s.ops.Time("push", func() error {
		return pipeline.Retry(r.Context(), s.log, "put organigram", func() error {
			return pc.PutOrganigram(r.Context(), req.FrameworkID, req.WidgetKey, doc.Root)
		})
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pushed":  true,
		"version": doc.Version,
		"nodes":   tree.Count(tree.Forest{doc.Root}),
	})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
