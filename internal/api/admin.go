package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/borisletic/lti-qa-tool/internal/extract"
	"github.com/borisletic/lti-qa-tool/internal/ingest"
	"github.com/borisletic/lti-qa-tool/internal/retrieval"
	"github.com/borisletic/lti-qa-tool/internal/storage"
)

const maxUploadBodySize = 2 * extract.MaxFileSize

// UploadPath returns where an uploaded material file is staged.
func UploadPath(uploadDir, course, filename string) string {
	return filepath.Join(uploadDir, retrieval.CollectionName(course), filename)
}

type uploadResult struct {
	Filename string `json:"filename"`
	JobID    string `json:"job_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type uploadResponse struct {
	Course string         `json:"course"`
	Files  []uploadResult `json:"files"`
}

// handleUploadMaterials stages multipart "files" for a course and queues one
// ingest job per accepted file. Files are reported individually.
func handleUploadMaterials(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		course := adminCourse(r, r.FormValue("course"))
		if !courseAllowed(r, deps.AdminToken, course) {
			httpError(w, http.StatusForbidden, "permission_error", "not allowed to manage course %s", course)
			return
		}
		files := r.MultipartForm.File["files"]
		if len(files) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no files uploaded")
			return
		}

		resp := uploadResponse{Course: course, Files: make([]uploadResult, 0, len(files))}
		accepted := 0
		for _, fh := range files {
			res := stageUpload(deps, course, fh)
			if res.Error == "" {
				accepted++
			} else {
				slog.Warn("upload rejected", "course", course, "file", res.Filename, "error", res.Error)
			}
			resp.Files = append(resp.Files, res)
		}

		status := http.StatusAccepted
		if accepted == 0 {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, resp)
	}
}

func stageUpload(deps Deps, course string, fh *multipart.FileHeader) uploadResult {
	name := filepath.Base(fh.Filename)
	res := uploadResult{Filename: name}

	switch {
	case strings.HasPrefix(name, ".") || !extract.Supported(name):
		res.Error = fmt.Sprintf("unsupported file type; supported: %s", strings.Join(extract.SupportedTypes(), ", "))
		return res
	case fh.Size > extract.MaxFileSize:
		res.Error = fmt.Sprintf("file exceeds %d bytes", extract.MaxFileSize)
		return res
	}

	path := UploadPath(deps.UploadDir, course, name)
	if err := saveUpload(fh, path); err != nil {
		res.Error = err.Error()
		return res
	}

	id, err := ingest.Enqueue(deps.Store, ingest.Payload{Course: course, Filename: name, Path: path})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.JobID = id
	return res
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("reading upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("staging upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("staging upload: %w", err)
	}
	return dst.Close()
}

type documentJSON struct {
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	Fragments int       `json:"fragments"`
	Status    string    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func handleListMaterials(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		course := adminCourse(r, r.URL.Query().Get("course"))
		if !courseAllowed(r, deps.AdminToken, course) {
			httpError(w, http.StatusForbidden, "permission_error", "not allowed to manage course %s", course)
			return
		}

		docs, err := deps.Store.ListDocuments(course)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list materials: %v", err)
			return
		}
		out := make([]documentJSON, len(docs))
		for i, d := range docs {
			out[i] = documentJSON{
				Filename:  d.Filename,
				FileType:  d.FileType,
				Fragments: d.Fragments,
				Status:    d.Status,
				LastError: d.LastError,
				UpdatedAt: d.UpdatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleDeleteMaterial(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		course := chi.URLParam(r, "course")
		filename := chi.URLParam(r, "filename")
		if !courseAllowed(r, deps.AdminToken, course) {
			httpError(w, http.StatusForbidden, "permission_error", "not allowed to manage course %s", course)
			return
		}

		doc, err := deps.Store.GetDocument(course, filename)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && doc.Status == storage.DocDeleted) {
			httpError(w, http.StatusNotFound, "not_found", "material not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get material: %v", err)
			return
		}

		n, err := ingest.Remove(r.Context(), deps.Registry, deps.Store, course, filename)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete material: %v", err)
			return
		}
		if err := os.Remove(UploadPath(deps.UploadDir, course, filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("removing staged upload failed", "course", course, "file", filename, "error", err)
		}

		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "fragments": n})
	}
}

type jobJSON struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Payload   string    `json:"payload"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		jobs, err := deps.Store.ListJobs(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}
		out := make([]jobJSON, len(jobs))
		for i, j := range jobs {
			out[i] = jobJSON{
				ID:        j.ID,
				Type:      j.Type,
				Status:    j.Status,
				Attempts:  j.Attempts,
				Payload:   j.PayloadJSON,
				LastError: j.LastError,
				UpdatedAt: j.UpdatedAt,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleRetryJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.RetryJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found or not retryable")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to retry job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "id": id})
	}
}
