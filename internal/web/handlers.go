package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tabledrop/tabledrop/internal/core"
	"github.com/tabledrop/tabledrop/internal/ingest"
	"github.com/tabledrop/tabledrop/internal/logging"
)

// handleUpload accepts a multipart CSV file, parses and type-infers it, and
// stores all rows in one transaction.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeBadRequest(w, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBadRequest(w, "failed to read file")
		return
	}

	ds, err := ingest.Parse(data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.ImportDataset(r.Context(), ds)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("upload stored",
		"file", header.Filename,
		"upload_id", result.UploadID,
		"rows", result.RowsInserted,
	)

	writeJSON(w, http.StatusOK, result)
}

// handleListRecords returns all records, optionally filtered by
// ?column=<name>&value=<value> equality.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	var filter *core.Filter
	if column := r.URL.Query().Get("column"); column != "" {
		filter = &core.Filter{
			Column: column,
			Value:  r.URL.Query().Get("value"),
		}
	}

	records, err := s.service.GetAll(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// handleCreateRecord inserts one record from a JSON field map.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	record, err := s.service.Insert(r.Context(), fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleGetRecord returns a single record by id.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	record, err := s.service.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleUpdateRecord applies a partial update and returns the updated record.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	record, err := s.service.Update(r.Context(), id, fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleDeleteRecord removes a record by id. Deleting a missing record is a
// 404, including the second delete of the same id.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	if err := s.service.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports 200 when the database answers a ping, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("health probe failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "reachable",
	})
}

// handleColumns exposes the backing table's live column names and types.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	columns, err := s.service.Columns(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"table":   s.service.Table(),
		"columns": columns,
	})
}

// recordID parses the {id} URL parameter. Writes a 400 and returns false on
// garbage input.
func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid record id")
		return 0, false
	}
	return id, true
}

// decodeFields decodes a JSON object body into a field map. Writes a 400
// and returns false when the body is not a JSON object or is empty.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeBadRequest(w, "request body must be a JSON object")
		return nil, false
	}
	if len(fields) == 0 {
		writeBadRequest(w, "no fields provided")
		return nil, false
	}
	return fields, true
}
