package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/structify/rfpchunk/internal/document"
	"github.com/structify/rfpchunk/internal/layout"
)

// chunkRequest is the POST /api/documents payload: a layout-analyzed
// document plus its metadata. DocumentID is generated when absent.
type chunkRequest struct {
	DocumentID string            `json:"document_id"`
	Metadata   document.Metadata `json:"metadata"`
	Document   layout.Result     `json:"document"`
}

func (s *Server) handleChunkDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	meta := req.Metadata
	meta.DocumentID = firstNonEmpty(req.DocumentID, meta.DocumentID, uuid.NewString())

	rawText, tables, images := layout.Extract(&req.Document)
	if strings.TrimSpace(rawText) == "" {
		jsonError(w, "document has no text content", http.StatusBadRequest)
		return
	}

	// Artifact persistence is best effort and records paths on the refs.
	if _, err := s.store.SaveRawText(meta.DocumentID, rawText); err != nil {
		s.log.Warn("raw text not saved", "document_id", meta.DocumentID, "error", err)
	}
	for i := range tables {
		s.store.SaveTable(meta.DocumentID, &tables[i])
	}
	for i := range images {
		s.store.SaveFigureText(meta.DocumentID, &images[i])
	}

	res, err := s.pipeline.Process(r.Context(), rawText, tables, images, &meta)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if _, err := s.store.SaveChunks(meta.DocumentID, res.Chunks); err != nil {
		s.log.Error("chunks not saved", "document_id", meta.DocumentID, "error", err)
		jsonError(w, "failed to persist chunks", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"document_id": meta.DocumentID,
		"result":      res,
	})
}

func (s *Server) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	chunks, err := s.store.LoadChunks(docID)
	if err != nil {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"document_id": docID,
		"chunks":      chunks,
	})
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.llmStats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": s.llmModel,
		"stats": s.llmStats.Snapshot(),
	})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
