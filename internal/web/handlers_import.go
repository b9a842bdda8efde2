package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ecsv/internal/core"
	"github.com/JonMunkholm/ecsv/internal/logging"
)

// handleInspect parses an uploaded file and reports what an import would do.
// Nothing is written to the database.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.uploadedFile(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer file.Close()

	result, err := s.service.Inspect(r.Context(), header.Filename, file)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type startImportResponse struct {
	ImportID    string `json:"importId"`
	ProgressURL string `json:"progressUrl"`
	ResultURL   string `json:"resultUrl"`
}

// handleImport starts a background import of the uploaded file into the
// optional "table" form value, or a table named after the file.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.uploadedFile(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	// The import goroutine owns the file from here and closes it. A spilled
	// upload stays readable after the handler returns since the descriptor
	// is still open.
	ctx := WithRequestMetadata(r.Context(), r)
	importID, err := s.service.StartImport(ctx, header.Filename, file, header.Size, r.FormValue("table"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if wantsRedirect(r) {
		http.Redirect(w, r, "/imports/"+importID, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, startImportResponse{
		ImportID:    importID,
		ProgressURL: "/api/import/" + importID + "/progress",
		ResultURL:   "/api/import/" + importID + "/result",
	})
}

// handleListImports returns the import history, newest first.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	imports, err := s.service.ListImports(r.Context(), parseIntParam(r, "limit", 0))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, imports)
}

// importResponse carries the history record of a finished import, or the
// live progress of a running one.
type importResponse struct {
	Record   *core.ImportRecord   `json:"record,omitempty"`
	Progress *core.ImportProgress `json:"progress,omitempty"`
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	rec, err := s.service.GetImport(r.Context(), importID)
	if err == nil {
		writeJSON(w, http.StatusOK, importResponse{Record: rec})
		return
	}
	if progress, perr := s.service.GetImportProgress(importID); perr == nil && !progress.Phase.Terminal() {
		writeJSON(w, http.StatusOK, importResponse{Progress: &progress})
		return
	}
	s.respondError(w, r, err, 0)
}

// handleImportProgress streams progress as Server-Sent Events. The event ID
// is the progress percentage, so a reconnecting client can pass lastEventId
// to skip updates it has already seen.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID, _ := strconv.Atoi(lastEventIDStr)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var last core.ImportProgress
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}
			last = progress

			percent := progress.Percent()
			if lastEventIDStr != "" && percent <= lastEventID && !progress.Phase.Terminal() {
				continue
			}

			data, err := json.Marshal(progress)
			if err != nil {
				logging.FromContext(r.Context()).Error("encode progress", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult waits for the import to finish and returns its result.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.GetImportResult(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if err := s.service.CancelImport(importID); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"importId": importID, "status": "cancelling"})
}

// handleRollbackImport deletes the rows an import inserted.
func (s *Server) handleRollbackImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	result, err := s.service.RollbackImport(r.Context(), importID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if wantsRedirect(r) {
		http.Redirect(w, r, "/imports/"+importID, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
