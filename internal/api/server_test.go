package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structify/rfpchunk/internal/chunking"
	"github.com/structify/rfpchunk/internal/config"
	"github.com/structify/rfpchunk/internal/llm"
	"github.com/structify/rfpchunk/internal/storage"
)

// offlineCompleter fails every call, driving the pipeline down its
// deterministic fallback paths.
type offlineCompleter struct{}

func (offlineCompleter) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("offline")
}

func (offlineCompleter) CompleteJSON(context.Context, string, string) (json.RawMessage, error) {
	return nil, errors.New("offline")
}

func (offlineCompleter) Ping(context.Context) error { return errors.New("offline") }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewStore(t.TempDir(), log)
	require.NoError(t, err)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.APIKey = "test-key"

	p := chunking.NewPipeline(offlineCompleter{}, chunking.DefaultLimits(), cfg.CharsPerPage, log)
	return NewServer(p, store, llm.NewStats(0), log, cfg)
}

func layoutPayload() map[string]any {
	var content strings.Builder
	content.WriteString("1.0 INTRODUCTION\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&content, "The project includes roadway and drainage improvements item %d. ", i)
	}

	return map[string]any{
		"document_id": "doc-api-1",
		"metadata": map[string]any{
			"document_title": "Roadway RFP",
			"client_name":    "City of Springfield",
		},
		"document": map[string]any{
			"content": content.String(),
			"paragraphs": []map[string]any{
				{"content": content.String(), "page_number": 1},
			},
			"tables": []map[string]any{
				{
					"row_count":    2,
					"column_count": 2,
					"page_number":  1,
					"cells": []map[string]any{
						{"row_index": 0, "column_index": 0, "content": "Item"},
						{"row_index": 0, "column_index": 1, "content": "Cost"},
						{"row_index": 1, "column_index": 0, "content": "Paving"},
						{"row_index": 1, "column_index": 1, "content": "$100"},
					},
				},
			},
		},
	}
}

func authedRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth_IsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth_RejectsMissingAndWrongKeys(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChunkDocument_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	body, err := json.Marshal(layoutPayload())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/documents", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		DocumentID string `json:"document_id"`
		Result     struct {
			Chunks         []map[string]any `json:"chunks"`
			AnalysisMethod string           `json:"analysis_method"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-api-1", resp.DocumentID)
	assert.NotEmpty(t, resp.Result.Chunks)
	assert.Equal(t, "fallback_regex", resp.Result.AnalysisMethod)

	// Persisted chunks are readable back through the API.
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/documents/doc-api-1/chunks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "doc-api-1")
}

func TestChunkDocument_GeneratesIDWhenAbsent(t *testing.T) {
	s := newTestServer(t)
	payload := layoutPayload()
	delete(payload, "document_id")
	body, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/documents", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		DocumentID string `json:"document_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DocumentID)
}

func TestChunkDocument_RejectsEmptyDocument(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"document": map[string]any{"content": ""}})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/documents", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChunkDocument_RejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/documents", []byte("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChunks_UnknownDocument(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/documents/missing/chunks", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLLMStats(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/stats/llm", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stats")
}
