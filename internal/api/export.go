package api

import (
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/MikeSquared-Agency/adapta/internal/events"
	"github.com/MikeSquared-Agency/adapta/internal/export"
	"github.com/MikeSquared-Agency/adapta/internal/tables"
)

type exportRequest struct {
	Content  string `json:"content" validate:"required"`
	Filename string `json:"filename" validate:"omitempty,max=200"`
}

type checkTablesRequest struct {
	Content string `json:"content" validate:"required"`
}

type checkTablesResponse struct {
	HasTables  bool           `json:"has_tables"`
	TableCount int            `json:"table_count"`
	Tables     []tables.Table `json:"tables"`
}

func (s *Server) exportDOCX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, export.DOCX{}, "docx")
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, export.XLSX{}, "xlsx")
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, renderer export.Renderer, format string) {
	var req exportRequest
	if !s.decode(w, r, &req) {
		return
	}

	found := tables.Extract(req.Content)
	s.metrics.TablesExtracted.Add(float64(len(found)))
	if len(found) == 0 {
		s.metrics.ExportsTotal.WithLabelValues(format, "no_tables").Inc()
		writeError(w, http.StatusBadRequest, "no tables found in content")
		return
	}

	now := s.now()
	path, cleanup, err := export.WriteTemp(s.cfg.ExportTempDir, renderer, export.Document{
		Tables:    found,
		Source:    req.Content,
		CreatedAt: now,
	})
	if err != nil {
		s.metrics.ExportsTotal.WithLabelValues(format, "error").Inc()
		s.logger.Error("export failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate "+format+" document")
		return
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		s.metrics.ExportsTotal.WithLabelValues(format, "error").Inc()
		s.logger.Error("open export file", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate "+format+" document")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.metrics.ExportsTotal.WithLabelValues(format, "error").Inc()
		s.logger.Error("stat export file", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate "+format+" document")
		return
	}
	size := info.Size()

	// Attachments are always sent whole; Range and conditional headers are ignored.
	name := export.Filename(req.Filename, renderer.Extension(), now)
	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.metrics.ExportsTotal.WithLabelValues(format, "error").Inc()
		s.logger.Warn("export download interrupted", "format", format, "error", err)
		return
	}

	s.metrics.ExportsTotal.WithLabelValues(format, "success").Inc()
	user := userFromContext(r.Context())
	if err := s.events.Publish(events.SubjectExportGenerated, events.ExportGenerated{
		UserID:     user,
		Format:     format,
		Filename:   name,
		TableCount: len(found),
		Bytes:      size,
		Timestamp:  events.Timestamp(now),
	}); err != nil {
		s.logger.Warn("failed to publish event", "subject", events.SubjectExportGenerated, "error", err)
	}
	s.logger.Info("export generated", "format", format, "tables", len(found), "bytes", size, "user", user)
}

func (s *Server) checkTables(w http.ResponseWriter, r *http.Request) {
	var req checkTablesRequest
	if !s.decode(w, r, &req) {
		return
	}

	found := tables.Extract(req.Content)
	s.metrics.TablesExtracted.Add(float64(len(found)))
	writeJSON(w, http.StatusOK, checkTablesResponse{
		HasTables:  len(found) > 0,
		TableCount: len(found),
		Tables:     found,
	})
}
