package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/report-vault/internal/autosave"
	"github.com/report-vault/internal/diff"
	"github.com/report-vault/internal/versions"
)

// maxBodyBytes bounds request bodies; report content is the largest payload
const maxBodyBytes = 32 << 20

// getPathParam extracts and URL-decodes a path parameter from the request
func getPathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw // return original if decode fails
	}
	return decoded
}

// APIError represents an error response
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.log.Error().Err(err).Msg("error encoding JSON response")
		}
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, APIError{Error: http.StatusText(status), Message: message})
}

// respondStoreError maps the version store's error taxonomy to a status code
func (s *Server) respondStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, versions.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, versions.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, versions.ErrQuotaExceeded):
		s.respondError(w, http.StatusInsufficientStorage, err.Error()+"; evict or export versions before retrying")
	case errors.Is(err, versions.ErrConcurrentModification):
		s.respondError(w, http.StatusConflict, err.Error()+"; reload or retry with force")
	case errors.Is(err, versions.ErrCorruptedData):
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.log.Error().Err(err).Msgf("failed to %s", action)
		s.respondError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleUsage returns storage usage for the namespace
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.store.StorageUsage(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "read storage usage")
		return
	}
	s.respondJSON(w, http.StatusOK, usage)
}

type sanitizeRequest struct {
	HTML string `json:"html"`
}

// handleSanitize runs the gate over arbitrary HTML
func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	var req sanitizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.gate.Sanitize(req.HTML))
}

type diffRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type diffResponse struct {
	*diff.Result
	Stats diff.Stats `json:"stats"`
}

// handleDiffContent diffs two posted contents
func (s *Server) handleDiffContent(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result := s.diff.Diff(req.Old, req.New)
	s.respondJSON(w, http.StatusOK, diffResponse{Result: result, Stats: result.Stats()})
}

// handleListDocuments returns all documents known to the store
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.Documents(r.Context())
	if err != nil {
		s.respondStoreError(w, err, "list documents")
		return
	}
	s.respondJSON(w, http.StatusOK, docs)
}

// handleListVersions returns all versions of a document, newest first
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")

	list, err := s.store.List(r.Context(), docID)
	if err != nil {
		s.respondStoreError(w, err, "list versions")
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

type appendRequest struct {
	Content           string                    `json:"content"`
	ChangeDescription string                    `json:"change_description"`
	CreatedBy         versions.Author           `json:"created_by"`
	ForensicContext   *versions.ForensicContext `json:"forensic_context"`
	IsAutoSave        bool                      `json:"is_auto_save"`
	Force             bool                      `json:"force"`
}

// handleAppend stores a new version
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")

	var req appendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := s.store.AppendWithOptions(r.Context(), docID, req.Content, versions.Metadata{
		ChangeDescription: req.ChangeDescription,
		CreatedBy:         req.CreatedBy,
		ForensicContext:   req.ForensicContext,
		IsAutoSave:        req.IsAutoSave,
	}, versions.AppendOptions{Force: req.Force})
	if err != nil {
		s.respondStoreError(w, err, "save version")
		return
	}

	s.respondJSON(w, http.StatusCreated, v)
}

// handleGetVersion returns a specific version
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")
	versionID := getPathParam(r, "versionID")

	res, err := s.store.Load(r.Context(), docID, versionID)
	if err != nil {
		s.respondStoreError(w, err, "get version")
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleDeleteVersion removes a single version
func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")
	versionID := getPathParam(r, "versionID")

	if err := s.store.Delete(r.Context(), docID, versionID); err != nil {
		s.respondStoreError(w, err, "delete version")
		return
	}
	s.respondJSON(w, http.StatusNoContent, nil)
}

type restoreRequest struct {
	ChangeDescription string          `json:"change_description"`
	CreatedBy         versions.Author `json:"created_by"`
}

// handleRestore appends a copy of an older version
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")
	versionID := getPathParam(r, "versionID")

	var req restoreRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	v, err := s.store.Restore(r.Context(), docID, versionID, versions.Metadata{
		ChangeDescription: req.ChangeDescription,
		CreatedBy:         req.CreatedBy,
	})
	if err != nil {
		s.respondStoreError(w, err, "restore version")
		return
	}

	s.log.Info().Str("document_id", docID).Str("from_version", versionID).Int("version", v.VersionNumber).Msg("version restored")
	s.respondJSON(w, http.StatusCreated, v)
}

// handleDiff returns a diff between two version numbers of a document
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")

	v1, err := strconv.Atoi(chi.URLParam(r, "v1"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid version number v1")
		return
	}
	v2, err := strconv.Atoi(chi.URLParam(r, "v2"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid version number v2")
		return
	}

	list, err := s.store.List(r.Context(), docID)
	if err != nil {
		s.respondStoreError(w, err, "get versions")
		return
	}

	var version1, version2 *versions.ReportVersion
	for i := range list {
		if list[i].VersionNumber == v1 {
			version1 = &list[i]
		}
		if list[i].VersionNumber == v2 {
			version2 = &list[i]
		}
	}
	if version1 == nil {
		s.respondError(w, http.StatusNotFound, "Version v1 not found")
		return
	}
	if version2 == nil {
		s.respondError(w, http.StatusNotFound, "Version v2 not found")
		return
	}

	result := diff.CompareVersions(
		version1.Content,
		version2.Content,
		fmt.Sprintf("%s (v%d)", docID, v1),
		fmt.Sprintf("%s (v%d)", docID, v2),
	)
	s.respondJSON(w, http.StatusOK, diffResponse{Result: result, Stats: result.Stats()})
}

// handleEvict evicts old auto-saves of a document
func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")

	keep := versions.DefaultKeepAutoSaves
	if raw := r.URL.Query().Get("keep"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid keep value")
			return
		}
		keep = n
	}

	evicted, err := s.store.EvictAutoSaves(r.Context(), docID, keep)
	if err != nil {
		s.respondStoreError(w, err, "evict versions")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"evicted": evicted, "keep": keep})
}

// handleExport returns the export JSON of a document
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")

	data, err := s.store.ExportJSON(r.Context(), docID)
	if err != nil {
		s.respondStoreError(w, err, "export document")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", docID+"-versions.json"))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, data)
}

// handleImport imports an export JSON body
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	n, err := s.store.ImportJSON(r.Context(), body)
	if err != nil {
		s.respondStoreError(w, err, "import versions")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int{"imported": n})
}

// handleReload accepts the current stored state after a conflict
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")

	if err := s.store.Reload(r.Context(), docID); err != nil {
		s.respondStoreError(w, err, "reload document")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleQuarantine moves corrupted data out of the way
func (s *Server) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	docID := getPathParam(r, "docID")

	key, err := s.store.Quarantine(r.Context(), docID)
	if err != nil {
		s.respondStoreError(w, err, "quarantine document")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"quarantine_key": key})
}

type autosaveRequest struct {
	Content string `json:"content"`
}

// handleAutosaveChange feeds a content change to the document's scheduler
func (s *Server) handleAutosaveChange(w http.ResponseWriter, r *http.Request) {
	if s.autosave == nil {
		s.respondError(w, http.StatusNotImplemented, "Auto-save is disabled")
		return
	}
	docID := getPathParam(r, "docID")

	var req autosaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, err := s.autosave.Notify(r.Context(), docID, req.Content)
	if err != nil {
		s.respondStoreError(w, err, "start auto-save")
		return
	}
	s.respondJSON(w, http.StatusAccepted, sched.Status())
}

// handleAutosaveStatus reports the scheduler state of an open document
func (s *Server) handleAutosaveStatus(w http.ResponseWriter, r *http.Request) {
	if s.autosave == nil {
		s.respondError(w, http.StatusNotImplemented, "Auto-save is disabled")
		return
	}
	docID := getPathParam(r, "docID")

	sched, ok := s.autosave.Get(docID)
	if !ok {
		s.respondError(w, http.StatusNotFound, autosave.ErrNotOpen.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sched.Status())
}

// handleAutosaveClose stops auto-saving a document, optionally flushing it
func (s *Server) handleAutosaveClose(w http.ResponseWriter, r *http.Request) {
	if s.autosave == nil {
		s.respondError(w, http.StatusNotImplemented, "Auto-save is disabled")
		return
	}
	docID := getPathParam(r, "docID")
	flush := r.URL.Query().Get("flush") == "true"

	err := s.autosave.Close(r.Context(), docID, flush)
	switch {
	case errors.Is(err, autosave.ErrNotOpen):
		s.respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.respondStoreError(w, err, "flush auto-save")
	default:
		s.respondJSON(w, http.StatusNoContent, nil)
	}
}
