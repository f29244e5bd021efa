// 本文件用于助手 HTTP 处理器相关测试
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"campus-assist/internal/models"
	"campus-assist/internal/service"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	cfg := &models.Config{
		DataDir:     filepath.Join(dir, "knowledge"),
		QueueFile:   filepath.Join(dir, "queue.json"),
		SearchLimit: 5,
		APIBind:     ":0",
	}
	svc, err := service.NewAssistantService(cfg)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return NewServer(cfg, svc).httpServer.Handler
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	payload := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, payload
}

func TestDocumentIngestAndSearchFlow(t *testing.T) {
	h := newTestHandler(t)

	code, payload := doJSON(t, h, http.MethodPost, "/api/documents",
		`{"title":"Hostel Rules","text":"1. Hostel Rules\nThe hostel gate closes at 10 pm sharp."}`)
	if code != http.StatusOK {
		t.Fatalf("ingest status %d: %v", code, payload)
	}
	document, ok := payload["document"].(map[string]any)
	if !ok {
		t.Fatalf("missing document in response: %v", payload)
	}
	docID, _ := document["documentId"].(string)
	if docID == "" {
		t.Fatalf("missing document id: %v", document)
	}

	code, payload = doJSON(t, h, http.MethodGet, "/api/documents/"+docID, "")
	if code != http.StatusOK {
		t.Fatalf("get document status %d: %v", code, payload)
	}

	code, payload = doJSON(t, h, http.MethodPost, "/api/search", `{"query":"hostel gate"}`)
	if code != http.StatusOK {
		t.Fatalf("search status %d: %v", code, payload)
	}
	results, ok := payload["results"].([]any)
	if !ok || len(results) == 0 {
		t.Fatalf("expected search results, got %v", payload)
	}
}

func TestDocumentNotFound(t *testing.T) {
	h := newTestHandler(t)
	code, _ := doJSON(t, h, http.MethodGet, "/api/documents/no-such-id", "")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestIngestRejectsEmptyText(t *testing.T) {
	h := newTestHandler(t)
	code, _ := doJSON(t, h, http.MethodPost, "/api/documents", `{"title":"empty","text":"   "}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestAssessAndQueueLifecycle(t *testing.T) {
	h := newTestHandler(t)

	code, payload := doJSON(t, h, http.MethodPost, "/api/chat/assess",
		`{"userId":"stu-1","message":"portal not working and my payment failed"}`)
	if code != http.StatusOK {
		t.Fatalf("assess status %d: %v", code, payload)
	}
	handoffPayload, ok := payload["handoff"].(map[string]any)
	if !ok {
		t.Fatalf("expected handoff request, got %v", payload)
	}
	requestID, _ := handoffPayload["id"].(string)
	if requestID == "" {
		t.Fatalf("missing handoff id: %v", handoffPayload)
	}

	code, payload = doJSON(t, h, http.MethodGet, "/api/queue/status", "")
	if code != http.StatusOK {
		t.Fatalf("queue status %d: %v", code, payload)
	}
	stats, ok := payload["stats"].(map[string]any)
	if !ok || stats["pendingTotal"].(float64) != 1 {
		t.Fatalf("expected one pending request, got %v", payload)
	}

	code, payload = doJSON(t, h, http.MethodPost, "/api/queue/"+requestID+"/action", `{"action":"assign"}`)
	if code != http.StatusOK {
		t.Fatalf("assign status %d: %v", code, payload)
	}

	code, _ = doJSON(t, h, http.MethodPost, "/api/queue/"+requestID+"/action", `{"action":"rewind"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", code)
	}

	code, _ = doJSON(t, h, http.MethodGet, "/api/queue/"+requestID, "")
	if code != http.StatusOK {
		t.Fatalf("get request status %d", code)
	}
}

func TestQueueActionMissingRequest(t *testing.T) {
	h := newTestHandler(t)
	code, _ := doJSON(t, h, http.MethodPost, "/api/queue/ghost/action", `{"action":"assign"}`)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t)
	code, payload := doJSON(t, h, http.MethodGet, "/api/health", "")
	if code != http.StatusOK {
		t.Fatalf("health status %d", code)
	}
	if _, ok := payload["documents"]; !ok {
		t.Fatalf("expected documents field, got %v", payload)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "casst_documents_total") {
		t.Fatalf("expected prometheus metrics, got %s", rec.Body.String())
	}
}

func TestSearchRejectsWrongMethod(t *testing.T) {
	h := newTestHandler(t)
	code, _ := doJSON(t, h, http.MethodGet, "/api/search", "")
	if code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}
