package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/aramishf/RAG-PDF-Expert/internal/ingestion"
	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
)

// uploadField is the multipart form field carrying the files.
const uploadField = "files"

// multipartMemory is the part of a multipart body held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// handleUpload handles POST /api/upload. Files are read fully, handed to the
// job queue, and the pending job is returned with 202 Accepted.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.uploadsTotal.WithLabelValues("too_large").Inc()
			writeJSON(w, r, http.StatusRequestEntityTooLarge,
				errorResponse{Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return
		}
		s.metrics.uploadsTotal.WithLabelValues("invalid").Inc()
		badRequest(w, r, "expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	ns, err := s.namespaceFor(r, r.FormValue("namespace"))
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("invalid").Inc()
		writeError(w, r, err)
		return
	}

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		s.metrics.uploadsTotal.WithLabelValues("invalid").Inc()
		badRequest(w, r, fmt.Sprintf("at least one file is required in form field %q", uploadField))
		return
	}

	files := make([]ingestion.File, 0, len(headers))
	var total int64
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			s.metrics.uploadsTotal.WithLabelValues("invalid").Inc()
			badRequest(w, r, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		total += int64(len(data))
		files = append(files, ingestion.File{Name: fh.Filename, Data: data})
	}

	job, err := s.deps.Jobs.Submit(r.Context(), ns, files)
	if err != nil {
		s.metrics.uploadsTotal.WithLabelValues("rejected").Inc()
		writeError(w, r, err)
		return
	}

	s.metrics.uploadsTotal.WithLabelValues("accepted").Inc()
	s.metrics.uploadBytes.Observe(float64(total))
	log.Info("upload accepted",
		slog.String("job_id", job.ID),
		slog.String("namespace", ns),
		slog.Int("files", len(files)),
		slog.Int64("bytes", total),
	)

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, r, http.StatusAccepted, job)
}

// readPart reads one uploaded file into memory.
func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// handleGetJob handles GET /api/jobs/{id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// handleCancelJob handles DELETE /api/jobs/{id}. A pending job is canceled
// at once; a running job stops before its next batch, so the returned
// snapshot may still read "running".
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.deps.Jobs.Cancel(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("job cancel requested",
		slog.String("job_id", id),
		slog.String("status", string(job.Status)),
	)
	writeJSON(w, r, http.StatusAccepted, job)
}
